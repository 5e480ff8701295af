// Package gzipcodec wraps github.com/klauspost/compress/gzip as the
// baseline codec.Adapter: the default algorithm, and the one the
// OOM-fallback path retries into when a stronger requested codec runs
// out of memory.
package gzipcodec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/fdupoux/fsarchiver-go/codec"
	"github.com/fdupoux/fsarchiver-go/errors"
)

func init() {
	codec.Register(codec.Gzip, Adapter{})
}

// Adapter implements codec.Adapter.
type Adapter struct{}

func (Adapter) Encode(dst, src []byte, level int) (int, error) {
	var buf bytes.Buffer
	buf.Grow(len(dst))
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return 0, errors.E(errors.Invalid, "gzipcodec: bad level", err)
	}
	if _, err := w.Write(src); err != nil {
		return 0, classifyWriteErr(err)
	}
	if err := w.Close(); err != nil {
		return 0, classifyWriteErr(err)
	}
	if buf.Len() > len(dst) {
		return 0, errors.E(errors.OOM, "gzipcodec: scratch buffer too small")
	}
	return copy(dst, buf.Bytes()), nil
}

func (Adapter) Decode(dst, src []byte) (int, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, errors.E(errors.Corrupt, "gzipcodec: invalid stream", err)
	}
	n, err := io.ReadFull(r, dst)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, errors.E(errors.Corrupt, "gzipcodec: decode failed", err)
	}
	return n, nil
}

func classifyWriteErr(err error) error {
	if err == bytes.ErrTooLarge {
		return errors.E(errors.OOM, "gzipcodec: out of memory", err)
	}
	return errors.E(errors.Other, "gzipcodec: encode failed", err)
}
