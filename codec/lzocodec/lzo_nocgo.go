//go:build !cgo

package lzocodec

import "github.com/fdupoux/fsarchiver-go/codec"

func init() {
	codec.Register(codec.Lzo, Adapter{})
}

// Adapter is the pure-Go stand-in used when the binary is built without
// cgo, so the package compiles unconditionally. It reports
// codec.ErrUnsupported; the transformer then stores the block uncompressed.
type Adapter struct{}

func (Adapter) Encode(dst, src []byte, level int) (int, error) {
	return 0, codec.ErrUnsupported
}

func (Adapter) Decode(dst, src []byte) (int, error) {
	return 0, codec.ErrUnsupported
}
