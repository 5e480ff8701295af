//go:build cgo

// Package lzocodec binds the system liblzo2 for the LZO codec; the
// _nocgo.go sibling keeps the package importable in pure-Go builds.
package lzocodec

/*
#cgo LDFLAGS: -llzo2
#include <lzo/lzo1x.h>
#include <stdlib.h>

static int fsa_lzo_init_once_done = 0;
static int fsa_lzo_ensure_init() {
	if (!fsa_lzo_init_once_done) {
		if (lzo_init() != LZO_E_OK) {
			return -1;
		}
		fsa_lzo_init_once_done = 1;
	}
	return 0;
}
*/
import "C"

import (
	"unsafe"

	"github.com/fdupoux/fsarchiver-go/codec"
	"github.com/fdupoux/fsarchiver-go/errors"
)

func init() {
	codec.Register(codec.Lzo, Adapter{})
}

// Adapter implements codec.Adapter over liblzo2's LZO1X algorithm.
type Adapter struct{}

func (Adapter) Encode(dst, src []byte, level int) (int, error) {
	if C.fsa_lzo_ensure_init() != 0 {
		return 0, errors.E(errors.Other, "lzocodec: lzo_init failed")
	}
	wrkmem := make([]byte, C.LZO1X_1_MEM_COMPRESS)
	destLen := C.lzo_uint(len(dst))
	var srcPtr *C.uchar
	if len(src) > 0 {
		srcPtr = (*C.uchar)(unsafe.Pointer(&src[0]))
	}
	var dstPtr *C.uchar
	if len(dst) > 0 {
		dstPtr = (*C.uchar)(unsafe.Pointer(&dst[0]))
	}
	ret := C.lzo1x_1_compress(srcPtr, C.lzo_uint(len(src)), dstPtr, &destLen, unsafe.Pointer(&wrkmem[0]))
	if ret != C.LZO_E_OK {
		return 0, errors.E(errors.Other, "lzocodec: lzo1x_1_compress failed")
	}
	if int(destLen) > len(dst) {
		return 0, errors.E(errors.OOM, "lzocodec: output buffer too small")
	}
	return int(destLen), nil
}

func (Adapter) Decode(dst, src []byte) (int, error) {
	if C.fsa_lzo_ensure_init() != 0 {
		return 0, errors.E(errors.Other, "lzocodec: lzo_init failed")
	}
	destLen := C.lzo_uint(len(dst))
	var srcPtr *C.uchar
	if len(src) > 0 {
		srcPtr = (*C.uchar)(unsafe.Pointer(&src[0]))
	}
	var dstPtr *C.uchar
	if len(dst) > 0 {
		dstPtr = (*C.uchar)(unsafe.Pointer(&dst[0]))
	}
	ret := C.lzo1x_decompress_safe(srcPtr, C.lzo_uint(len(src)), dstPtr, &destLen, nil)
	switch ret {
	case C.LZO_E_OK:
		return int(destLen), nil
	case C.LZO_E_OUTPUT_OVERRUN:
		return 0, errors.E(errors.OOM, "lzocodec: output buffer too small")
	default:
		return 0, errors.E(errors.Corrupt, "lzocodec: lzo1x_decompress_safe failed")
	}
}
