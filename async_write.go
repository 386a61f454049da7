package evdisp

// WriteCallback fires once an AsyncWrite/AsyncWriteBlock record is fully
// serviced — either every byte was sent, or the peer closed mid-transfer
// and the record was absorbed with a short write.
type WriteCallback func(conn Connection)

// bufferWriteRecord drains a []byte to a connection, calling SendOne until
// every byte is sent or the connection would block, and is requeued on
// would-block. There is no
// cross-thread double-buffer/eventfd submission path here — AsyncWrite is
// only ever called from the loop's own goroutine, so there is no
// producer/consumer handoff to buffer.
type bufferWriteRecord struct {
	buf     Buffer
	written int
	cb      WriteCallback
	pooled  bool
	done    bool // guards against a reentrant Cancel re-firing an already-completed record
}

func (r *bufferWriteRecord) step(c Connection) (bool, error) {
	for r.written < len(r.buf.Data) {
		n, status, err := c.SendOne(r.buf.Data[r.written:])
		r.written += n
		switch status {
		case IOWouldBlock:
			return false, nil
		case IOClosed:
			r.finish(c)
			return true, nil
		case IOError:
			return true, newDispatchError(c, "AsyncWrite", err)
		}
		// IOOk: loop again only if SendOne under-wrote without blocking;
		// most backends report a short write as IOOk once and readiness
		// clears, so this normally exits via the length check above.
		if n == 0 {
			return false, nil
		}
	}
	r.finish(c)
	return true, nil
}

func (r *bufferWriteRecord) finish(c Connection) {
	r.done = true
	if r.pooled {
		freeBuf(r.buf.Data)
	}
	if r.cb != nil {
		r.cb(c)
	}
}

// abort completes the record, unless it already completed via finish — a
// completion callback that reentrantly calls Cancel on its own connection
// still finds itself at the head of the queue (it hasn't been popped
// yet), and without this check would fire a second time and double-free
// r.buf.Data into the pool when r.pooled.
func (r *bufferWriteRecord) abort(c Connection) {
	if r.done {
		return
	}
	r.done = true
	if r.pooled {
		freeBuf(r.buf.Data)
	}
	if r.cb != nil {
		r.cb(c)
	}
}

// blockWriteRecord drains a pinned Block to a connection, byte-identical
// stepping to bufferWriteRecord but without ever touching the size-classed
// buffer pool (blocks are externally owned/released).
type blockWriteRecord struct {
	block   Block
	written int
	cb      WriteCallback
	done    bool // guards against a reentrant Cancel re-firing an already-completed record
}

func (r *blockWriteRecord) step(c Connection) (bool, error) {
	data := r.block.Bytes()
	for r.written < len(data) {
		n, status, err := c.SendOne(data[r.written:])
		r.written += n
		switch status {
		case IOWouldBlock:
			return false, nil
		case IOClosed:
			r.done = true
			if r.cb != nil {
				r.cb(c)
			}
			return true, nil
		case IOError:
			return true, newDispatchError(c, "AsyncWriteBlock", err)
		}
		if n == 0 {
			return false, nil
		}
	}
	r.done = true
	if r.cb != nil {
		r.cb(c)
	}
	return true, nil
}

func (r *blockWriteRecord) abort(c Connection) {
	if r.done {
		return
	}
	r.done = true
	if r.cb != nil {
		r.cb(c)
	}
}

// AsyncWrite enqueues buf for transmission on conn, invoking cb once every
// byte has been sent (or the peer closed and the write was absorbed). A
// zero-length buf completes synchronously with no queueing, matching the
// "empty write is a no-op success" edge case.
func (d *Dispatcher) AsyncWrite(conn Connection, buf []byte, cb WriteCallback) {
	if len(buf) == 0 {
		if cb != nil {
			cb(conn)
		}
		return
	}
	d.asyncWriteBuffer(conn, Buffer{Data: buf}, false, cb)
}

// AsyncWriteCopy behaves like AsyncWrite but copies buf into a pool-backed
// buffer first, so the caller's slice can be reused or mutated immediately
// after the call returns.
func (d *Dispatcher) AsyncWriteCopy(conn Connection, buf []byte, cb WriteCallback) {
	if len(buf) == 0 {
		if cb != nil {
			cb(conn)
		}
		return
	}
	owned := mallocBuf(len(buf))
	copy(owned, buf)
	d.asyncWriteBuffer(conn, Buffer{Data: owned}, true, cb)
}

// AsyncWriteCopyString is the string-typed twin of AsyncWriteCopy, for the
// common case of writing a formatted response without an intermediate
// []byte conversion at the call site.
func (d *Dispatcher) AsyncWriteCopyString(conn Connection, s string, cb WriteCallback) {
	if len(s) == 0 {
		if cb != nil {
			cb(conn)
		}
		return
	}
	owned := mallocBuf(len(s))
	copy(owned, s)
	d.asyncWriteBuffer(conn, Buffer{Data: owned}, true, cb)
}

func (d *Dispatcher) asyncWriteBuffer(conn Connection, buf Buffer, pooled bool, cb WriteCallback) {
	rec := &bufferWriteRecord{buf: buf, cb: cb, pooled: pooled}
	d.enqueueWrite(conn, rec)
}

// AsyncWriteBlock enqueues a pinned Block for transmission, without a
// buffer-pool copy. Ownership of block after cb fires belongs to the
// caller (typically returned to whatever PinnedBlockPool it came from).
func (d *Dispatcher) AsyncWriteBlock(conn Connection, block Block, cb WriteCallback) {
	if block == nil || block.Len() == 0 {
		if cb != nil {
			cb(conn)
		}
		return
	}
	rec := &blockWriteRecord{block: block, cb: cb}
	d.enqueueWrite(conn, rec)
}
