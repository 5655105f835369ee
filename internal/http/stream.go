package http

import (
	"context"
	"io"
	"sync"
)

// Stream is a lazy sequence of body chunks for one transfer. It holds a
// connection lease until Close.
type Stream struct {
	// Offset is the position in the file of the first delivered byte.
	Offset int64

	// Total is the full file size, or -1 when the server did not say.
	Total int64

	ctx     context.Context
	body    io.ReadCloser
	buf     []byte
	eof     bool
	err     error // read error held back until the bytes before it are delivered
	release func()
	stop    func() bool
	once    sync.Once
}

// Next returns the next chunk of at most the pool's chunk size. The slice
// is only valid until the following call. Next returns io.EOF after the last
// chunk, and the context error once the transfer context is done.
func (s *Stream) Next() ([]byte, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.eof {
		return nil, io.EOF
	}
	if s.err != nil {
		return nil, s.err
	}

	var (
		n   int
		err error
	)
	for n < len(s.buf) && err == nil {
		var m int
		m, err = s.body.Read(s.buf[n:])
		n += m
	}

	if err == io.EOF {
		s.eof = true
		err = nil
		if n == 0 {
			return nil, io.EOF
		}
	}
	if err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if n == 0 {
			return nil, err
		}
		s.err = err
	}
	return s.buf[:n], nil
}

// Close aborts the transfer if still running and returns the lease.
// It is safe to call more than once and from any goroutine.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		err = s.body.Close()
		s.release()
	})
	return err
}
