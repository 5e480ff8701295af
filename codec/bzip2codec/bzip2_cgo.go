//go:build cgo

// Package bzip2codec binds the system libbz2 for BZIP2 blocks. Go's
// standard library only ships a bzip2 decoder, so round-trip support
// requires this cgo binding; the _nocgo.go sibling keeps the package
// importable in pure-Go builds.
package bzip2codec

/*
#cgo LDFLAGS: -lbz2
#include <bzlib.h>
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/fdupoux/fsarchiver-go/codec"
	"github.com/fdupoux/fsarchiver-go/errors"
)

func init() {
	codec.Register(codec.Bzip2, Adapter{})
}

// Adapter implements codec.Adapter over libbz2.
type Adapter struct{}

func (Adapter) Encode(dst, src []byte, level int) (int, error) {
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	destLen := C.uint(len(dst))
	var srcPtr *C.char
	if len(src) > 0 {
		srcPtr = (*C.char)(unsafe.Pointer(&src[0]))
	}
	var dstPtr *C.char
	if len(dst) > 0 {
		dstPtr = (*C.char)(unsafe.Pointer(&dst[0]))
	}
	ret := C.BZ2_bzBuffToBuffCompress(dstPtr, &destLen, srcPtr, C.uint(len(src)), C.int(level), 0, 0)
	switch ret {
	case C.BZ_OK:
		return int(destLen), nil
	case C.BZ_OUTBUFF_FULL:
		return 0, errors.E(errors.OOM, "bzip2codec: output buffer too small")
	case C.BZ_MEM_ERROR:
		return 0, errors.E(errors.OOM, "bzip2codec: out of memory")
	default:
		return 0, errors.E(errors.Other, "bzip2codec: BZ2_bzBuffToBuffCompress failed")
	}
}

func (Adapter) Decode(dst, src []byte) (int, error) {
	destLen := C.uint(len(dst))
	var srcPtr *C.char
	if len(src) > 0 {
		srcPtr = (*C.char)(unsafe.Pointer(&src[0]))
	}
	var dstPtr *C.char
	if len(dst) > 0 {
		dstPtr = (*C.char)(unsafe.Pointer(&dst[0]))
	}
	ret := C.BZ2_bzBuffToBuffDecompress(dstPtr, &destLen, srcPtr, C.uint(len(src)), 0, 0)
	switch ret {
	case C.BZ_OK:
		return int(destLen), nil
	case C.BZ_OUTBUFF_FULL:
		return 0, errors.E(errors.OOM, "bzip2codec: output buffer too small")
	case C.BZ_MEM_ERROR:
		return 0, errors.E(errors.OOM, "bzip2codec: out of memory")
	case C.BZ_DATA_ERROR, C.BZ_DATA_ERROR_MAGIC:
		return 0, errors.E(errors.Corrupt, "bzip2codec: invalid stream")
	default:
		return 0, errors.E(errors.Other, "bzip2codec: BZ2_bzBuffToBuffDecompress failed")
	}
}
