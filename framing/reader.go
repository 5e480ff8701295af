package framing

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"

	"github.com/fdupoux/fsarchiver-go/checksum"
	"github.com/fdupoux/fsarchiver-go/dico"
	"github.com/fdupoux/fsarchiver-go/errors"
	"github.com/fdupoux/fsarchiver-go/log"
	"github.com/fdupoux/fsarchiver-go/queue"
	"github.com/fdupoux/fsarchiver-go/retry"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Retry is the policy applied when opening the next volume file
	// fails transiently. Nil selects the default policy.
	Retry retry.Policy
}

// Reader parses framed items back out of an archive's volume files, in
// on-disk order. Volume header and footer items are consumed internally;
// Next reports io.EOF after the footer of the last volume.
type Reader struct {
	ctx       context.Context
	basePath  string
	opts      ReaderOptions
	f         *os.File
	r         *bufio.Reader
	volnum    uint32
	archiveID uint32
}

// NewFileReader opens the first volume of the archive at path and reads
// its volume header. The context bounds retries when later volumes are
// opened.
func NewFileReader(ctx context.Context, path string, opts ReaderOptions) (*Reader, error) {
	if opts.Retry == nil {
		opts.Retry = defaultRetryPolicy
	}
	r := &Reader{ctx: ctx, basePath: path, opts: opts}
	if err := r.openVolume(); err != nil {
		return nil, err
	}
	return r, nil
}

// ArchiveID returns the identifier read from the volume headers.
func (r *Reader) ArchiveID() uint32 { return r.archiveID }

func (r *Reader) openVolume() error {
	path, err := VolumePath(r.basePath, r.volnum)
	if err != nil {
		return err
	}
	var f *os.File
	for retries := 0; ; retries++ {
		f, err = os.Open(path)
		if err == nil {
			break
		}
		if werr := retry.Wait(r.ctx, r.opts.Retry, retries); werr != nil {
			return errors.E("framing: open volume "+path, err)
		}
		log.Debug.Printf("framing: retrying volume open %s: %v", path, err)
	}
	r.f = f
	r.r = bufio.NewReader(f)

	magic, h, err := r.readHeaderItem()
	if err != nil {
		return err
	}
	if magic != MagicVolumeHeader {
		return errors.E(errors.Corrupt, "framing: volume does not start with a volume header")
	}
	volnum, ok := h.Dico.GetUint32(dicoVolumeNum)
	if !ok || volnum != r.volnum {
		return errors.E(errors.Corrupt, "framing: volume header carries the wrong volume number")
	}
	id, ok := h.Dico.GetUint32(dicoArchiveID)
	if !ok {
		return errors.E(errors.Corrupt, "framing: volume header missing archive id")
	}
	if r.volnum == 0 {
		r.archiveID = id
	} else if id != r.archiveID {
		return errors.E(errors.Corrupt, "framing: volume belongs to a different archive")
	}
	return nil
}

// nextVolume closes the current volume file and opens the following one.
func (r *Reader) nextVolume() error {
	if err := r.f.Close(); err != nil {
		return errors.E("framing: close volume", err)
	}
	r.volnum++
	return r.openVolume()
}

func (r *Reader) readFull(p []byte) error {
	if _, err := io.ReadFull(r.r, p); err != nil {
		return errors.E(errors.Corrupt, "framing: truncated archive", err)
	}
	return nil
}

// readHeaderItem reads one complete header item, magic included, at the
// current offset, and rejects a magic outside the known set.
func (r *Reader) readHeaderItem() (MagicBytes, queue.HeadInfo, error) {
	var fixed [headerFixedSize]byte
	if err := r.readFull(fixed[:]); err != nil {
		return MagicBytes{}, queue.HeadInfo{}, err
	}
	var magic MagicBytes
	copy(magic[:], fixed[:8])
	if !IsMagicValid(magic) {
		return MagicBytes{}, queue.HeadInfo{}, errUnknownMagic(magic)
	}
	h, err := r.readHeaderBody(magic, fixed[8:])
	return magic, h, err
}

// readHeaderBody parses the fixed fields after the magic and the
// dictionary body that follows them.
func (r *Reader) readHeaderBody(magic MagicBytes, fixed []byte) (queue.HeadInfo, error) {
	fsid := binary.BigEndian.Uint16(fixed[0:])
	bodyLen := binary.BigEndian.Uint32(fixed[2:])
	sum := binary.BigEndian.Uint32(fixed[6:])
	if bodyLen > maxHeaderLen {
		return queue.HeadInfo{}, errors.E(errors.Corrupt, "framing: header dictionary too large")
	}
	body := make([]byte, bodyLen)
	if err := r.readFull(body); err != nil {
		return queue.HeadInfo{}, err
	}
	if checksum.Fletcher32(body) != sum {
		return queue.HeadInfo{}, errors.E(errors.Corrupt, "framing: header checksum mismatch")
	}
	d := dico.New()
	if err := d.Unmarshal(body); err != nil {
		return queue.HeadInfo{}, err
	}
	return queue.HeadInfo{Magic: magic, FSID: fsid, Dico: d}, nil
}

func (r *Reader) readBlock() (queue.BlockInfo, error) {
	var rec [blockRecordSize]byte
	if err := r.readFull(rec[:]); err != nil {
		return queue.BlockInfo{}, err
	}
	var b queue.BlockInfo
	if err := unmarshalBlockRecord(rec[:], &b); err != nil {
		return queue.BlockInfo{}, err
	}
	b.Data = make([]byte, b.ArSize)
	if err := r.readFull(b.Data); err != nil {
		return queue.BlockInfo{}, err
	}
	return b, nil
}

// Next returns the next item in archive order: a block (with its
// on-archive bytes still transformed) or a header item. It returns
// io.EOF once the last volume's footer has been read, and a Corrupt
// error on an unknown magic, a bad checksum or a truncated stream.
func (r *Reader) Next() (queue.Kind, queue.HeadInfo, queue.BlockInfo, error) {
	for {
		var magic MagicBytes
		if err := r.readFull(magic[:]); err != nil {
			return 0, queue.HeadInfo{}, queue.BlockInfo{}, err
		}
		if !IsMagicValid(magic) {
			return 0, queue.HeadInfo{}, queue.BlockInfo{}, errUnknownMagic(magic)
		}
		switch magic {
		case MagicBlockHeader:
			b, err := r.readBlock()
			if err != nil {
				return 0, queue.HeadInfo{}, queue.BlockInfo{}, err
			}
			return queue.KindBlock, queue.HeadInfo{}, b, nil
		case MagicVolumeHeader:
			return 0, queue.HeadInfo{}, queue.BlockInfo{}, errors.E(errors.Corrupt,
				"framing: unexpected volume header inside a volume")
		case MagicVolumeFooter:
			var fixed [headerFixedSize - 8]byte
			if err := r.readFull(fixed[:]); err != nil {
				return 0, queue.HeadInfo{}, queue.BlockInfo{}, err
			}
			h, err := r.readHeaderBody(magic, fixed[:])
			if err != nil {
				return 0, queue.HeadInfo{}, queue.BlockInfo{}, err
			}
			last, ok := h.Dico.GetUint8(dicoLastVolume)
			if !ok {
				return 0, queue.HeadInfo{}, queue.BlockInfo{}, errors.E(errors.Corrupt,
					"framing: volume footer missing continuation flag")
			}
			if last != 0 {
				return 0, queue.HeadInfo{}, queue.BlockInfo{}, io.EOF
			}
			if err := r.nextVolume(); err != nil {
				return 0, queue.HeadInfo{}, queue.BlockInfo{}, err
			}
		default:
			var fixed [headerFixedSize - 8]byte
			if err := r.readFull(fixed[:]); err != nil {
				return 0, queue.HeadInfo{}, queue.BlockInfo{}, err
			}
			h, err := r.readHeaderBody(magic, fixed[:])
			if err != nil {
				return 0, queue.HeadInfo{}, queue.BlockInfo{}, err
			}
			return queue.KindHeader, h, queue.BlockInfo{}, nil
		}
	}
}

// Close closes the currently open volume file. It does not consume the
// rest of the archive.
func (r *Reader) Close() error {
	return r.f.Close()
}
