package pipeline

import (
	"fmt"

	"github.com/fdupoux/fsarchiver-go/checksum"
	"github.com/fdupoux/fsarchiver-go/cipher"
	"github.com/fdupoux/fsarchiver-go/codec"
	"github.com/fdupoux/fsarchiver-go/errors"
	"github.com/fdupoux/fsarchiver-go/log"
	"github.com/fdupoux/fsarchiver-go/queue"
)

// transformLoop is one transformer worker: claim the earliest TODO
// block, transform it in the run's direction, hand it back DONE. The
// loop ends when the queue reports end-of-queue or cancellation; a
// transform failure is fatal for the run: it stops the queue fill and
// closes the queue, so a producer blocked on backpressure returns.
func transformLoop(pctx *Context, opts *Options, dir Direction, q *queue.Queue) {
	for {
		itemnum, blk, err := q.ClaimNextTodoBlock()
		if err != nil {
			// EndOfQueue after drain, or Canceled on abort.
			return
		}
		switch dir {
		case Compress:
			err = compressBlock(opts, &blk)
		case Decompress:
			err = decompressBlock(opts, &blk, pctx.Stats)
		}
		if err != nil {
			pctx.Fail(err)
			q.Close()
			return
		}
		if err := q.CompleteBlock(itemnum, blk); err != nil && !errors.Is(errors.NotFound, err) {
			// NotFound means the consumer discarded the item during
			// shutdown, which is normal after a failure elsewhere.
			pctx.Fail(err)
			return
		}
	}
}

// compressBlock turns a raw block into its on-archive form: codec, then
// cipher, then the final checksum. A block that a codec cannot shrink is
// stored raw with CompAlgo None. When a codec stronger than the default
// runs out of memory, the block is retried exactly once at the default
// algorithm and level; a second out-of-memory failure is surfaced.
func compressBlock(opts *Options, b *queue.BlockInfo) error {
	realsize := int(b.RealSize)
	scratch := make([]byte, codec.ScratchSize(realsize))
	algo, level := opts.CompressAlgo, opts.CompressLevel

	compsize := -1
	var cerr error
	if algo != codec.None {
		for attempt := 0; ; attempt++ {
			adapter, ok := codec.Lookup(algo)
			if !ok {
				cerr = errors.E(errors.Invalid, "pipeline: no codec registered for "+algo.String())
				break
			}
			compsize, cerr = adapter.Encode(scratch, b.Data[:realsize], level)
			if cerr != nil && errors.Is(errors.OOM, cerr) && algo > codec.Default && attempt == 0 {
				log.Error.Printf("pipeline: %s ran out of memory, retrying block at offset %d with %s",
					algo, b.Offset, codec.Default)
				algo, level = codec.Default, codec.DefaultLevel
				continue
			}
			break
		}
		if cerr != nil && errors.Is(errors.OOM, cerr) {
			return errors.E("pipeline: compress block at offset "+fmt.Sprint(b.Offset), cerr)
		}
	}

	if cerr == nil && algo != codec.None && uint64(compsize) < b.RealSize {
		// Compression worked and saved space.
		b.Data = scratch[:compsize]
		b.CompSize = uint64(compsize)
		b.CompAlgo = algo
	} else {
		// Compressed version is bigger, no codec was requested, or the
		// codec failed in a non-fatal way: keep the original bytes.
		copy(scratch, b.Data[:realsize])
		b.Data = scratch[:realsize]
		b.CompSize = b.RealSize
		b.CompAlgo = codec.None
	}
	b.ArSize = b.CompSize

	if opts.EncryptAlgo != cipher.None {
		adapter, ok := cipher.Lookup(opts.EncryptAlgo)
		if !ok {
			return errors.E(errors.Invalid, "pipeline: no cipher registered for "+opts.EncryptAlgo.String())
		}
		out := make([]byte, b.CompSize)
		if err := adapter.Encrypt(out, b.Data[:b.CompSize], opts.EncryptKey); err != nil {
			return err
		}
		b.Data = out
		b.ArSize = uint64(len(out))
		b.CryptAlgo = opts.EncryptAlgo
	} else {
		b.CryptAlgo = cipher.None
	}

	b.Checksum = checksum.Fletcher32(b.Data[:b.ArSize])
	return nil
}

// decompressBlock inverts compressBlock: verify the archive checksum,
// decipher, decode. A checksum mismatch or decoder failure zero-fills
// the destination and counts a corrupt block instead of failing the
// run, so restore continues deterministically past damaged data. An
// encrypted block without configured key material, or a deciphered size
// that disagrees with the recorded compressed size, is fatal.
func decompressBlock(opts *Options, b *queue.BlockInfo, stats *Stats) error {
	dst := make([]byte, b.RealSize)

	if checksum.Fletcher32(b.Data[:b.ArSize]) != b.Checksum {
		log.Error.Printf("pipeline: block is corrupt at offset=%d, blksize=%d", b.Offset, b.RealSize)
		stats.CountBlockCorrupt()
		b.Data = dst
		return nil
	}

	data := b.Data[:b.ArSize]
	if b.CryptAlgo != cipher.None {
		if opts.EncryptAlgo == cipher.None || len(opts.EncryptKey) == 0 {
			return errors.E(errors.MissingKey,
				"pipeline: this archive is encrypted, key material is required to restore it")
		}
		adapter, ok := cipher.Lookup(b.CryptAlgo)
		if !ok {
			return errors.E(errors.Invalid, "pipeline: no cipher registered for "+b.CryptAlgo.String())
		}
		plain := make([]byte, len(data))
		if err := adapter.Decrypt(plain, data, opts.EncryptKey); err != nil {
			return err
		}
		if uint64(len(plain)) != b.CompSize {
			return errors.E(errors.LengthMismatch, fmt.Sprintf(
				"pipeline: deciphered size %d does not match blkcompsize %d", len(plain), b.CompSize))
		}
		data = plain
	}

	if b.CompAlgo == codec.None {
		copy(dst, data)
	} else {
		adapter, ok := codec.Lookup(b.CompAlgo)
		if !ok {
			return errors.E(errors.Invalid, "pipeline: no codec registered for "+b.CompAlgo.String())
		}
		n, err := adapter.Decode(dst, data[:b.CompSize])
		if err != nil || uint64(n) != b.RealSize {
			log.Error.Printf("pipeline: decode failed at offset=%d: %v", b.Offset, err)
			stats.CountBlockCorrupt()
			for i := range dst {
				dst[i] = 0
			}
		}
	}

	b.Data = dst
	return nil
}
