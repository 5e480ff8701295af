package framing

import (
	"encoding/binary"

	"github.com/fdupoux/fsarchiver-go/cipher"
	"github.com/fdupoux/fsarchiver-go/codec"
	"github.com/fdupoux/fsarchiver-go/errors"
	"github.com/fdupoux/fsarchiver-go/queue"
)

// FsidNone is the fsid carried by header items that do not belong to a
// particular filesystem (archive header, volume framing, footer).
const FsidNone uint16 = 0xffff

// blockRecordSize is the fixed on-disk size of the record that precedes
// every block's raw bytes: four 64-bit sizes, two algorithm tags and the
// 32-bit archive checksum.
const blockRecordSize = 8 + 8 + 8 + 8 + 1 + 1 + 4

// maxHeaderLen bounds the serialized dictionary of a single header item.
// A larger length is treated as corruption rather than allocated.
const maxHeaderLen = 16 << 20

// maxBlockSize bounds a single block's on-archive byte count.
const maxBlockSize = 1 << 30

func marshalBlockRecord(dst []byte, b *queue.BlockInfo) {
	binary.BigEndian.PutUint64(dst[0:], b.RealSize)
	binary.BigEndian.PutUint64(dst[8:], b.CompSize)
	binary.BigEndian.PutUint64(dst[16:], b.ArSize)
	binary.BigEndian.PutUint64(dst[24:], b.Offset)
	dst[32] = byte(b.CompAlgo)
	dst[33] = byte(b.CryptAlgo)
	binary.BigEndian.PutUint32(dst[34:], b.Checksum)
}

func unmarshalBlockRecord(src []byte, b *queue.BlockInfo) error {
	if len(src) < blockRecordSize {
		return errors.E(errors.Corrupt, "framing: truncated block record")
	}
	b.RealSize = binary.BigEndian.Uint64(src[0:])
	b.CompSize = binary.BigEndian.Uint64(src[8:])
	b.ArSize = binary.BigEndian.Uint64(src[16:])
	b.Offset = binary.BigEndian.Uint64(src[24:])
	b.CompAlgo = codec.Algo(src[32])
	b.CryptAlgo = cipher.Algo(src[33])
	b.Checksum = binary.BigEndian.Uint32(src[34:])
	if b.ArSize > maxBlockSize || b.RealSize > maxBlockSize {
		return errors.E(errors.Corrupt, "framing: block size out of range")
	}
	return nil
}
