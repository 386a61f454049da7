package evdisp

// ReadCallback fires once an AsyncRead record has filled its target byte
// count, or the peer closed mid-transfer (in which case the delivered
// Buffer is empty; whatever partial bytes had already arrived are
// discarded, unlike AsyncReadBlock).
type ReadCallback func(conn Connection, buf Buffer)

// ReadBlockCallback is the pinned-Block counterpart of ReadCallback.
type ReadBlockCallback func(conn Connection, block Block)

// bufferReadRecord fills a pool-backed buffer of a fixed target size,
// calling RecvOne until the buffer is full or the connection would block,
// symmetric to bufferWriteRecord.
type bufferReadRecord struct {
	buf  Buffer
	got  int
	cb   ReadCallback
	done bool // guards against a reentrant Cancel re-firing an already-completed record
}

func (r *bufferReadRecord) step(c Connection) (bool, error) {
	for r.got < len(r.buf.Data) {
		n, status, err := c.RecvOne(r.buf.Data[r.got:])
		r.got += n
		switch status {
		case IOWouldBlock:
			return false, nil
		case IOClosed:
			r.closed(c)
			return true, nil
		case IOError:
			return true, newDispatchError(c, "AsyncRead", err)
		}
		if n == 0 {
			return false, nil
		}
	}
	r.finish(c)
	return true, nil
}

// finish delivers the full buffer once every requested byte has arrived.
func (r *bufferReadRecord) finish(c Connection) {
	r.done = true
	if r.cb != nil {
		r.cb(c, Buffer{Data: r.buf.Data[:r.got]})
	}
}

// closed delivers an empty Buffer when the peer closes mid-transfer,
// discarding whatever partial bytes were already read. This is the
// buffer-read half of the buffer-vs-block closure asymmetry: a block read
// hands back its partial data, a buffer read does not. Since the caller
// never sees r.buf.Data, it's returned to the pool here instead.
func (r *bufferReadRecord) closed(c Connection) {
	r.done = true
	freeBuf(r.buf.Data)
	if r.cb != nil {
		r.cb(c, Buffer{})
	}
}

// abort completes the record with an empty Buffer, unless it already
// completed via finish/closed — a completion callback that reentrantly
// calls Cancel on its own connection still finds itself at the head of
// the queue (it hasn't been popped yet), and without this check would
// fire a second time and double-free r.buf.Data into the pool.
func (r *bufferReadRecord) abort(c Connection) {
	if r.done {
		return
	}
	r.done = true
	freeBuf(r.buf.Data)
	if r.cb != nil {
		r.cb(c, Buffer{})
	}
}

// blockReadRecord fills a pinned Block's backing bytes directly, no
// buffer-pool involvement.
type blockReadRecord struct {
	block Block
	got   int
	cb    ReadBlockCallback
	done  bool // guards against a reentrant Cancel re-firing an already-completed record
}

func (r *blockReadRecord) step(c Connection) (bool, error) {
	data := r.block.Bytes()
	for r.got < len(data) {
		n, status, err := c.RecvOne(data[r.got:])
		r.got += n
		switch status {
		case IOWouldBlock:
			return false, nil
		case IOClosed:
			r.done = true
			if r.cb != nil {
				r.cb(c, r.block)
			}
			return true, nil
		case IOError:
			return true, newDispatchError(c, "AsyncReadBlock", err)
		}
		if n == 0 {
			return false, nil
		}
	}
	r.done = true
	if r.cb != nil {
		r.cb(c, r.block)
	}
	return true, nil
}

func (r *blockReadRecord) abort(c Connection) {
	if r.done {
		return
	}
	r.done = true
	if r.cb != nil {
		r.cb(c, r.block)
	}
}

// AsyncRead reads exactly n bytes from conn and invokes cb with them. If
// the peer closes first, cb receives an empty Buffer and any bytes already
// read are dropped. n == 0 completes synchronously with an empty Buffer.
func (d *Dispatcher) AsyncRead(conn Connection, n int, cb ReadCallback) {
	if n <= 0 {
		if cb != nil {
			cb(conn, Buffer{})
		}
		return
	}
	rec := &bufferReadRecord{buf: Buffer{Data: mallocBuf(n)}, cb: cb}
	d.enqueueRead(conn, rec)
}

// AsyncReadBlock reads until block is full (or the peer closes early) and
// invokes cb with the same block.
func (d *Dispatcher) AsyncReadBlock(conn Connection, block Block, cb ReadBlockCallback) {
	if block == nil || block.Len() == 0 {
		if cb != nil {
			cb(conn, block)
		}
		return
	}
	rec := &blockReadRecord{block: block, cb: cb}
	d.enqueueRead(conn, rec)
}
