// Package ioutil implements small I/O helper types shared across the
// core's storage layers: closer adaptation and multi-closer
// aggregation, used wherever a reader/writer's lifetime is composed
// from more than one underlying resource (e.g. a zlib reader wrapping
// a file).
package ioutil

import (
	"errors"
	"io"
)

// Peeker is satisfied by readers that can look ahead without consuming,
// such as bufio.Reader.
type Peeker interface {
	Peek(int) ([]byte, error)
}

// ReadPeeker groups Read and Peek.
type ReadPeeker interface {
	io.Reader
	Peeker
}

type multiCloser struct{ closers []io.Closer }

// Close closes every underlying closer, continuing past individual
// failures and joining them via errors.Join.
func (mc *multiCloser) Close() error {
	var errs []error
	for _, c := range mc.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiCloser returns an io.Closer that closes every given closer in
// order, merging any errors.
func MultiCloser(closers ...io.Closer) io.Closer {
	return &multiCloser{closers: closers}
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error { return r.closer.Close() }

// NewReadCloser pairs r with closer to form an io.ReadCloser.
func NewReadCloser(r io.Reader, c io.Closer) io.ReadCloser {
	return &readCloser{Reader: r, closer: c}
}

type writeCloser struct {
	io.Writer
	closer io.Closer
}

func (w *writeCloser) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// NewWriteCloser pairs w with closer to form an io.WriteCloser.
func NewWriteCloser(w io.Writer, c io.Closer) io.WriteCloser {
	return &writeCloser{Writer: w, closer: c}
}

type writeNopCloser struct{ io.Writer }

func (writeNopCloser) Close() error { return nil }

// WriteNopCloser wraps w with a no-op Close.
func WriteNopCloser(w io.Writer) io.WriteCloser {
	return writeNopCloser{w}
}

// CheckClose calls c.Close and, if *err is nil, assigns the result to
// it. Intended for `defer ioutil.CheckClose(f, &err)` so a deferred
// Close's error isn't silently dropped when the function is otherwise
// succeeding.
func CheckClose(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
