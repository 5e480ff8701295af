// Package codec defines the pluggable compression stage: an Algo enum and
// the Adapter interface every codec implementation satisfies.
package codec

import "github.com/fdupoux/fsarchiver-go/errors"

// Algo identifies a compression algorithm, including the on-disk NONE
// value for a block that was left uncompressed.
type Algo uint8

const (
	None Algo = iota
	Gzip
	Bzip2
	Lzo
	Lzma
)

func (a Algo) String() string {
	switch a {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Lzo:
		return "lzo"
	case Lzma:
		return "lzma"
	default:
		return "unknown"
	}
}

// Default is the baseline algorithm the transformer retries into when a
// stronger requested algorithm runs out of memory.
const Default = Gzip

// DefaultLevel is the compression level used alongside Default on fallback.
const DefaultLevel = 6

// ErrUnsupported is returned by an Adapter built without its native
// library (a _nocgo.go build) when asked to encode or decode.
var ErrUnsupported = errors.E(errors.Invalid, "codec: algorithm not supported in this build")

// Adapter is implemented by each codec. Encode and Decode are stateless:
// adapters retain no state across calls.
type Adapter interface {
	// Encode compresses src into dst at the given level and returns the
	// number of bytes written to dst. Returns an OOM-kind error if the
	// codec ran out of memory.
	Encode(dst, src []byte, level int) (int, error)

	// Decode decompresses src into dst and returns the number of bytes
	// written. Returns an OOM-kind error if a memory ceiling was reached.
	Decode(dst, src []byte) (int, error)
}

var registry = map[Algo]Adapter{}

// Register associates an Adapter implementation with algo. Codec
// sub-packages call this from an init function.
func Register(algo Algo, a Adapter) {
	registry[algo] = a
}

// Lookup returns the Adapter registered for algo, or (nil, false).
func Lookup(algo Algo) (Adapter, bool) {
	a, ok := registry[algo]
	return a, ok
}

// ScratchSize returns the scratch buffer size needed to compress a block
// of realSize bytes with any supported codec: a safe upper bound that
// also covers the case where compression expands the input.
func ScratchSize(realSize int) int {
	return realSize + realSize/16 + 64 + 3
}
