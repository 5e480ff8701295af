package framing

import (
	"bufio"
	"context"
	"encoding/binary"
	"os"
	"time"

	"github.com/fdupoux/fsarchiver-go/checksum"
	"github.com/fdupoux/fsarchiver-go/dico"
	"github.com/fdupoux/fsarchiver-go/errors"
	"github.com/fdupoux/fsarchiver-go/internal/randid"
	"github.com/fdupoux/fsarchiver-go/log"
	"github.com/fdupoux/fsarchiver-go/queue"
	"github.com/fdupoux/fsarchiver-go/retry"
)

// defaultRetryPolicy governs volume-file creation and opening: a short
// exponential backoff bounded to a handful of tries, for filesystems
// where a freshly-created path is momentarily unavailable.
var defaultRetryPolicy = retry.MaxRetries(retry.Backoff(100*time.Millisecond, time.Second, 2), 5)

// headerFixedSize is the fixed part of a framed header item: magic,
// fsid, body length and body checksum.
const headerFixedSize = 8 + 2 + 4 + 4

// WriterOptions configures a Writer.
type WriterOptions struct {
	// ArchiveID identifies the archive across its volumes. If zero, a
	// fresh identifier is generated.
	ArchiveID uint32
	// VolumeSize is the maximum byte count of one volume file. Zero
	// means a single unbounded volume.
	VolumeSize int64
	// Retry is the policy applied when creating a new volume file fails
	// transiently. Nil selects the default policy.
	Retry retry.Policy
}

// Writer serializes queue items into one or more volume files, in the
// exact order they are handed to it. Every volume starts with a volume
// header item and ends with a volume footer item saying whether another
// volume follows.
type Writer struct {
	ctx       context.Context
	basePath  string
	opts      WriterOptions
	f         *os.File
	w         *bufio.Writer
	volnum    uint32
	written   int64
	archiveID uint32
	closed    bool
}

// NewFileWriter creates the first volume file at path and writes its
// volume header. The context bounds retries when later volumes are
// created.
func NewFileWriter(ctx context.Context, path string, opts WriterOptions) (*Writer, error) {
	if opts.ArchiveID == 0 {
		opts.ArchiveID = randid.New()
	}
	if opts.Retry == nil {
		opts.Retry = defaultRetryPolicy
	}
	w := &Writer{
		ctx:       ctx,
		basePath:  path,
		opts:      opts,
		archiveID: opts.ArchiveID,
	}
	if err := w.openVolume(); err != nil {
		return nil, err
	}
	return w, nil
}

// ArchiveID returns the identifier stamped into every volume header.
func (w *Writer) ArchiveID() uint32 { return w.archiveID }

func (w *Writer) openVolume() error {
	path, err := VolumePath(w.basePath, w.volnum)
	if err != nil {
		return err
	}
	var f *os.File
	for retries := 0; ; retries++ {
		f, err = os.Create(path)
		if err == nil {
			break
		}
		if werr := retry.Wait(w.ctx, w.opts.Retry, retries); werr != nil {
			return errors.E("framing: create volume "+path, err)
		}
		log.Debug.Printf("framing: retrying volume create %s: %v", path, err)
	}
	w.f = f
	w.w = bufio.NewWriter(f)
	w.written = 0
	return w.writeItem(MagicVolumeHeader, FsidNone, volumeHeaderDico(w.volnum, w.archiveID))
}

func (w *Writer) closeVolume(last bool) error {
	if err := w.writeItem(MagicVolumeFooter, FsidNone, volumeFooterDico(w.volnum, last)); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return errors.E("framing: flush volume", err)
	}
	if err := w.f.Close(); err != nil {
		return errors.E("framing: close volume", err)
	}
	return nil
}

// rollover closes the current volume with a continuation footer and
// opens the next one.
func (w *Writer) rollover() error {
	if err := w.closeVolume(false); err != nil {
		return err
	}
	w.volnum++
	return w.openVolume()
}

// volumeFooterSlack is the room reserved at the end of every volume for
// its footer item.
const volumeFooterSlack = 64

func (w *Writer) maybeRollover(itemSize int64) error {
	if w.opts.VolumeSize <= 0 || w.written == 0 {
		return nil
	}
	if w.written+itemSize+volumeFooterSlack <= w.opts.VolumeSize {
		return nil
	}
	return w.rollover()
}

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.written += int64(n)
	if err != nil {
		return errors.E("framing: write", err)
	}
	return nil
}

func (w *Writer) writeItem(magic MagicBytes, fsid uint16, d *dico.Dico) error {
	body, err := d.Marshal()
	if err != nil {
		return err
	}
	return w.writeItemBody(magic, fsid, body)
}

func (w *Writer) writeItemBody(magic MagicBytes, fsid uint16, body []byte) error {
	if len(body) > maxHeaderLen {
		return errors.E(errors.Invalid, "framing: header dictionary too large")
	}
	var fixed [headerFixedSize]byte
	copy(fixed[:8], magic[:])
	binary.BigEndian.PutUint16(fixed[8:], fsid)
	binary.BigEndian.PutUint32(fixed[10:], uint32(len(body)))
	binary.BigEndian.PutUint32(fixed[14:], checksum.Fletcher32(body))
	if err := w.write(fixed[:]); err != nil {
		return err
	}
	return w.write(body)
}

// WriteHeader frames one header item. The volume framing items are
// written by the Writer itself; callers must not pass their magics.
func (w *Writer) WriteHeader(h queue.HeadInfo) error {
	if h.Magic == MagicVolumeHeader || h.Magic == MagicVolumeFooter {
		return errors.E(errors.Invalid, "framing: volume framing is written internally")
	}
	if !IsMagicValid(h.Magic) {
		return errUnknownMagic(h.Magic)
	}
	d := h.Dico
	if d == nil {
		d = dico.New()
	}
	body, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := w.maybeRollover(int64(headerFixedSize + len(body))); err != nil {
		return err
	}
	return w.writeItemBody(h.Magic, h.FSID, body)
}

// WriteBlock frames one transformed block: the fixed block record
// followed by the block's on-archive bytes.
func (w *Writer) WriteBlock(b queue.BlockInfo) error {
	if uint64(len(b.Data)) < b.ArSize {
		return errors.E(errors.Invalid, "framing: block data shorter than blkarsize")
	}
	if err := w.maybeRollover(8 + blockRecordSize + int64(b.ArSize)); err != nil {
		return err
	}
	var fixed [8 + blockRecordSize]byte
	copy(fixed[:8], MagicBlockHeader[:])
	marshalBlockRecord(fixed[8:], &b)
	if err := w.write(fixed[:]); err != nil {
		return err
	}
	return w.write(b.Data[:b.ArSize])
}

// Close writes the final volume footer and closes the current volume
// file. Close must be called exactly once.
func (w *Writer) Close() error {
	if w.closed {
		return errors.E(errors.Invalid, "framing: writer already closed")
	}
	w.closed = true
	return w.closeVolume(true)
}
