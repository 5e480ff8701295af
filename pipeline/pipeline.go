// Package pipeline runs the concurrent machinery that turns a stream of
// raw data blocks and metadata headers into an archive, and inverts it
// on restore: one producer, a pool of transformer goroutines applying
// codec and cipher to blocks, and one consumer draining the shared
// queue in strict insertion order.
package pipeline

import (
	"runtime"

	"github.com/fdupoux/fsarchiver-go/cipher"
	"github.com/fdupoux/fsarchiver-go/codec"
	"github.com/fdupoux/fsarchiver-go/errors"
)

// Direction selects what the transformer pool does to blocks.
type Direction int

const (
	// Compress transforms raw blocks into their on-archive form:
	// codec, then cipher, then checksum.
	Compress Direction = iota
	// Decompress inverts it: checksum verify, decipher, then decode.
	Decompress
)

// maxTransformers caps the default worker count.
const maxTransformers = 32

// defaultMaxInFlightBlocks is the default backpressure threshold.
const defaultMaxInFlightBlocks = 32

// Options configures one pipeline run. Options are read-only once the
// workers start.
type Options struct {
	// CompressAlgo is the requested codec. None stores blocks raw.
	CompressAlgo codec.Algo
	// CompressLevel is the requested codec level.
	CompressLevel int
	// EncryptAlgo is the cipher applied after the codec, or None.
	EncryptAlgo cipher.Algo
	// EncryptKey is the caller-supplied key material. Required when
	// EncryptAlgo is not None, and when restoring an encrypted archive.
	EncryptKey []byte
	// NumTransformers is the transformer pool size. Zero selects the
	// number of CPUs, capped.
	NumTransformers int
	// MaxInFlightBlocks is the soft cap on queued blocks beyond which
	// the producer blocks. Zero selects the default.
	MaxInFlightBlocks int64
}

func (o Options) withDefaults() Options {
	if o.NumTransformers == 0 {
		o.NumTransformers = runtime.NumCPU()
		if o.NumTransformers > maxTransformers {
			o.NumTransformers = maxTransformers
		}
	}
	if o.MaxInFlightBlocks == 0 {
		o.MaxInFlightBlocks = defaultMaxInFlightBlocks
	}
	return o
}

func (o Options) validate() error {
	if o.NumTransformers < 1 {
		return errors.E(errors.Invalid, "pipeline: NumTransformers must be at least 1")
	}
	if o.EncryptAlgo != cipher.None && len(o.EncryptKey) == 0 {
		return errors.E(errors.Invalid, "pipeline: encryption requested without key material")
	}
	return nil
}
