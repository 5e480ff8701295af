// Package framing implements the on-disk archive format: 8-byte magic
// tags identifying each item kind, the fixed block record preceding raw
// block bytes, typed header dictionaries, and the Writer/Reader pair
// that serializes queue items into volume files and parses them back in
// archive order.
package framing

import (
	"fmt"

	"github.com/fdupoux/fsarchiver-go/errors"
)

// MagicBytes is the fixed-width ASCII tag that starts every on-disk item.
type MagicBytes [8]byte

// The closed set of valid magic tags. An unknown magic on read aborts the
// stream with a Corrupt error.
var (
	// MagicArchiveHeader starts the main archive header.
	MagicArchiveHeader = MagicBytes{'F', 's', 'A', 'r', 'C', 'h', '0', '2'}
	// MagicVolumeHeader starts every volume file.
	MagicVolumeHeader = MagicBytes{'F', 's', 'A', 'r', 'V', 'o', 'L', 't'}
	// MagicVolumeFooter ends every volume file and says whether another
	// volume follows.
	MagicVolumeFooter = MagicBytes{'F', 's', 'A', 'r', 'V', 'o', 'L', 'f'}
	// MagicFilesystemInfo carries the per-filesystem properties dictionary.
	MagicFilesystemInfo = MagicBytes{'F', 's', 'A', 'r', 'F', 's', 'I', 'n'}
	// MagicFilesystemBegin marks the start of one filesystem's data stream.
	MagicFilesystemBegin = MagicBytes{'F', 's', 'A', 'r', 'F', 's', 'Y', 'b'}
	// MagicDatafilesEnd marks the end of one filesystem's data stream.
	MagicDatafilesEnd = MagicBytes{'F', 's', 'A', 'r', 'D', 'a', 'T', 'f'}
	// MagicObjectEntry carries one filesystem object's metadata dictionary.
	MagicObjectEntry = MagicBytes{'F', 's', 'A', 'r', 'O', 'b', 'J', 't'}
	// MagicBlockHeader precedes every raw data block.
	MagicBlockHeader = MagicBytes{'F', 's', 'A', 'r', 'B', 'l', 'K', 'h'}
	// MagicFileFooter ends one regular file's sequence of blocks.
	MagicFileFooter = MagicBytes{'F', 's', 'A', 'r', 'F', 'i', 'L', 'f'}
	// MagicDirsInfo carries the directory tree dictionary.
	MagicDirsInfo = MagicBytes{'F', 's', 'A', 'r', 'D', 'i', 'R', 's'}
)

var validMagics = []MagicBytes{
	MagicArchiveHeader,
	MagicVolumeHeader,
	MagicVolumeFooter,
	MagicFilesystemInfo,
	MagicFilesystemBegin,
	MagicDatafilesEnd,
	MagicObjectEntry,
	MagicBlockHeader,
	MagicFileFooter,
	MagicDirsInfo,
}

// IsMagicValid reports whether magic is in the closed set of known tags.
func IsMagicValid(magic MagicBytes) bool {
	for _, m := range validMagics {
		if m == magic {
			return true
		}
	}
	return false
}

func (m MagicBytes) String() string { return string(m[:]) }

func errUnknownMagic(magic MagicBytes) error {
	return errors.E(errors.Corrupt, fmt.Sprintf("framing: unknown magic %q", magic[:]))
}
