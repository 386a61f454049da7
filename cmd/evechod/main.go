// Command evechod runs a minimal echo server on top of evdisp, mainly to
// exercise the dispatcher end to end: accept, AsyncRead, AsyncWrite,
// repeat, plus a periodic timer that logs a connection count.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxlab/evdisp"
)

var (
	addr       string
	logDir     string
	msgSize    int
	statsEvery time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "evechod",
		Short: "evechod runs an echo server on top of the evdisp dispatcher",
		RunE:  run,
	}
	root.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	root.Flags().StringVar(&logDir, "log-dir", "", "log directory (stdout if empty)")
	root.Flags().IntVar(&msgSize, "msg-size", 4096, "echo read chunk size, in bytes")
	root.Flags().DurationVar(&statsEvery, "stats-every", 5*time.Second, "connection-count log interval")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if _, err := evdisp.NewLog(logDir); err != nil {
		return err
	}

	d, err := evdisp.NewDispatcher()
	if err != nil {
		return err
	}
	defer d.Close()

	ln, err := evdisp.NewListener(addr, evdisp.ReuseAddr(true))
	if err != nil {
		return err
	}
	defer ln.Close()

	live := 0
	if err := d.RegisterListener(ln, func(fd int) {
		conn := evdisp.NewNetConn(fd)
		if err := d.Register(conn); err != nil {
			evdisp.Warning("evechod: register %s: %s", conn, err)
			return
		}
		live++
		evdisp.Debug("evechod: accepted %s (%d live)", conn, live)
		echoOnce(d, conn, &live)
	}); err != nil {
		return err
	}

	d.AddTimer(statsEvery, statsEvery, func(now time.Time) bool {
		evdisp.Info("evechod: %d live connections", live)
		return true
	})

	evdisp.Info("evechod: listening on %s", addr)
	return d.Loop()
}

// echoOnce reads exactly msgSize bytes and, once they arrive, writes them
// straight back and re-arms another read — a ping-pong loop that ends only
// when the peer closes. A peer that closes mid-read delivers an empty
// buffer, so bytes short of a full msgSize chunk are not echoed.
func echoOnce(d *evdisp.Dispatcher, conn evdisp.Connection, live *int) {
	d.AsyncRead(conn, msgSize, func(c evdisp.Connection, buf evdisp.Buffer) {
		if buf.Len() == 0 {
			*live--
			evdisp.Debug("evechod: %s closed (%d live)", conn, *live)
			evdisp.ReleaseBuffer(buf)
			closeConn(d, conn)
			return
		}
		d.AsyncWrite(c, buf.Data, func(c evdisp.Connection) {
			evdisp.ReleaseBuffer(buf)
			echoOnce(d, c, live)
		})
	})
}

func closeConn(d *evdisp.Dispatcher, conn evdisp.Connection) {
	d.Cancel(conn)
	if closer, ok := conn.(interface{ Close() error }); ok {
		closer.Close()
	}
}
