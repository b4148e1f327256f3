package object

import (
	"bytes"
	"io"
)

// Blob is an opaque byte sequence: file content, with no structure git
// itself interprets. Content is held behind a Reader-producing func so
// large blobs can be streamed through hashing and storage without being
// fully buffered in memory twice.
type Blob struct {
	size int64
	open func() (io.ReadCloser, error)
}

// NewBlob wraps in-memory content as a Blob.
func NewBlob(content []byte) *Blob {
	return &Blob{
		size: int64(len(content)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// NewBlobFromReader wraps a reader-opening func as a Blob of the given
// size. open may be called more than once (e.g. once to hash, once to
// write to storage); each call must yield an independent reader over the
// same content.
func NewBlobFromReader(size int64, open func() (io.ReadCloser, error)) *Blob {
	return &Blob{size: size, open: open}
}

func (b *Blob) Type() Type { return BlobType }

// Size returns the blob's content length in bytes.
func (b *Blob) Size() int64 { return b.size }

// Reader opens a fresh stream over the blob's content. Callers must
// Close it.
func (b *Blob) Reader() (io.ReadCloser, error) { return b.open() }

// Bytes fully materializes the blob's content.
func (b *Blob) Bytes() ([]byte, error) {
	r, err := b.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *Blob) Encode(w ContentWriter) error {
	r, err := b.open()
	if err != nil {
		return err
	}
	defer r.Close()
	ww, ok := w.(io.Writer)
	if !ok {
		// ContentWriter is always an io.Writer in practice; this branch
		// only matters if a caller supplies a minimal mock.
		buf, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		_, err = w.Write(buf)
		return err
	}
	_, err = io.Copy(ww, r)
	return err
}

// DecodeBlob wraps raw, already-decoded object content (as read from
// loose or pack storage) as a Blob.
func DecodeBlob(content []byte) *Blob {
	return NewBlob(content)
}
