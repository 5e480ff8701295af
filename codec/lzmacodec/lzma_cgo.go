//go:build cgo

// Package lzmacodec binds the system liblzma. The decode path caps the
// decoder's memory: start at 96 MiB, raise by 64 MiB per memory-limit
// failure, give up once the limit would exceed a 3 GiB ceiling.
package lzmacodec

/*
#cgo LDFLAGS: -llzma
#include <lzma.h>
#include <string.h>
*/
import "C"

import (
	"runtime"
	"unsafe"

	"github.com/fdupoux/fsarchiver-go/codec"
	"github.com/fdupoux/fsarchiver-go/errors"
)

func init() {
	codec.Register(codec.Lzma, Adapter{})
}

const (
	startMemLimit = 96 * 1024 * 1024
	memLimitStep  = 64 * 1024 * 1024
	maxMemLimit   = 3 * 1024 * 1024 * 1024
)

// Adapter implements codec.Adapter over liblzma.
type Adapter struct{}

func (Adapter) Encode(dst, src []byte, level int) (int, error) {
	if level < 0 {
		level = 0
	}
	if level > 9 {
		level = 9
	}
	// The zero value equals LZMA_STREAM_INIT, a macro cgo cannot use.
	var strm C.lzma_stream
	ret := C.lzma_easy_encoder(&strm, C.uint32_t(level), C.LZMA_CHECK_CRC32)
	if ret != C.LZMA_OK {
		return 0, classify(ret, "lzma_easy_encoder")
	}
	defer C.lzma_end(&strm)

	return runStream(&strm, dst, src)
}

func (Adapter) Decode(dst, src []byte) (int, error) {
	memlimit := C.uint64_t(startMemLimit)
	for {
		var strm C.lzma_stream
		ret := C.lzma_stream_decoder(&strm, memlimit, 0)
		if ret != C.LZMA_OK {
			return 0, classify(ret, "lzma_stream_decoder")
		}
		n, err := runStream(&strm, dst, src)
		C.lzma_end(&strm)
		if err == nil {
			return n, nil
		}
		if !errors.Is(errors.OOM, err) || uint64(memlimit)+memLimitStep > maxMemLimit {
			return 0, err
		}
		memlimit += memLimitStep
	}
}

func runStream(strm *C.lzma_stream, dst, src []byte) (int, error) {
	// strm is Go memory passed to C, so the buffers it points at are pinned
	// while it refers to them, and the references are cleared on return.
	var pinner runtime.Pinner
	defer pinner.Unpin()
	defer func() { strm.next_in, strm.next_out = nil, nil }()
	if len(src) > 0 {
		pinner.Pin(&src[0])
		strm.next_in = (*C.uint8_t)(unsafe.Pointer(&src[0]))
	}
	strm.avail_in = C.size_t(len(src))
	if len(dst) > 0 {
		pinner.Pin(&dst[0])
		strm.next_out = (*C.uint8_t)(unsafe.Pointer(&dst[0]))
	}
	strm.avail_out = C.size_t(len(dst))

	for {
		ret := C.lzma_code(strm, C.LZMA_FINISH)
		if ret == C.LZMA_STREAM_END {
			return len(dst) - int(strm.avail_out), nil
		}
		if ret != C.LZMA_OK {
			return 0, classify(ret, "lzma_code")
		}
		if strm.avail_out == 0 {
			return 0, errors.E(errors.OOM, "lzmacodec: output buffer too small")
		}
	}
}

func classify(ret C.lzma_ret, where string) error {
	switch ret {
	case C.LZMA_MEM_ERROR, C.LZMA_MEMLIMIT_ERROR:
		return errors.E(errors.OOM, "lzmacodec: "+where+": out of memory")
	case C.LZMA_DATA_ERROR, C.LZMA_FORMAT_ERROR, C.LZMA_BUF_ERROR:
		return errors.E(errors.Corrupt, "lzmacodec: "+where+": invalid stream")
	default:
		return errors.E(errors.Other, "lzmacodec: "+where+" failed")
	}
}
