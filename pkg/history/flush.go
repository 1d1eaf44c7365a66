package history

// FlushHandle tracks one background flush. A nil handle stands for "nothing
// to flush" and behaves as an already completed, successful flush.
type FlushHandle struct {
	done    chan struct{}
	records int
	written int
	err     error
}

func newFlushHandle(records int) *FlushHandle {
	return &FlushHandle{done: make(chan struct{}), records: records}
}

func (h *FlushHandle) finish(written int, err error) {
	h.written = written
	h.err = err
	close(h.done)
}

// Wait blocks until the flush has finished and returns its error, if any.
func (h *FlushHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// Done reports, without blocking, whether the flush has finished.
func (h *FlushHandle) Done() bool {
	if h == nil {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Records returns how many records the flush was asked to write.
func (h *FlushHandle) Records() int {
	if h == nil {
		return 0
	}
	return h.records
}

// Written returns how many records reached the file. Valid once Done.
func (h *FlushHandle) Written() int {
	if h == nil || !h.Done() {
		return 0
	}
	return h.written
}
