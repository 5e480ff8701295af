package pipeline_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdupoux/fsarchiver-go/cipher"
	_ "github.com/fdupoux/fsarchiver-go/cipher/blowfishcfb"
	"github.com/fdupoux/fsarchiver-go/codec"
	_ "github.com/fdupoux/fsarchiver-go/codec/gzipcodec"
	"github.com/fdupoux/fsarchiver-go/dico"
	"github.com/fdupoux/fsarchiver-go/errors"
	"github.com/fdupoux/fsarchiver-go/framing"
	"github.com/fdupoux/fsarchiver-go/pipeline"
	"github.com/fdupoux/fsarchiver-go/queue"
)

// Dico key under which the fake filesystem stores an object's path.
const dicoObjectPath uint16 = 10

// fakeFile is one object of the in-memory filesystem the fakes archive
// and restore.
type fakeFile struct {
	name string
	data []byte
}

// fsProducer emits the item stream a filesystem reader would: a
// filesystem-begin header, then per file an object header followed by
// its raw blocks, then a datafiles-end footer.
func fsProducer(files []fakeFile, blockSize int) pipeline.ProducerFunc {
	return func(pctx *pipeline.Context, q *queue.Queue) error {
		if _, err := q.EnqueueHeader(queue.HeadInfo{
			Magic: framing.MagicFilesystemBegin, FSID: 0, Dico: dico.New(),
		}); err != nil {
			return err
		}
		for _, f := range files {
			if pctx.FillQueueStopped() {
				return nil
			}
			d := dico.New()
			d.SetBytes(dicoObjectPath, []byte(f.name))
			if _, err := q.EnqueueHeader(queue.HeadInfo{
				Magic: framing.MagicObjectEntry, FSID: 0, Dico: d,
			}); err != nil {
				return err
			}
			for off := 0; off < len(f.data); off += blockSize {
				end := off + blockSize
				if end > len(f.data) {
					end = len(f.data)
				}
				data := make([]byte, end-off)
				copy(data, f.data[off:end])
				if _, err := q.EnqueueBlock(queue.BlockInfo{
					Data:     data,
					RealSize: uint64(end - off),
					Offset:   uint64(off),
				}); err != nil {
					if errors.Is(errors.EndOfQueue, err) || errors.Is(errors.Canceled, err) {
						return nil
					}
					return err
				}
			}
		}
		_, err := q.EnqueueHeader(queue.HeadInfo{
			Magic: framing.MagicDatafilesEnd, FSID: 0, Dico: dico.New(),
		})
		return err
	}
}

// fsRestorer is the consumer a filesystem reconstructor would be: it
// peeks the head kind, dequeues with the kind-asserting variants and
// reassembles files in memory.
func fsRestorer(mu *sync.Mutex, files map[string][]byte) pipeline.ConsumerFunc {
	return func(pctx *pipeline.Context, q *queue.Queue) error {
		var current string
		for {
			kind, magic, err := q.PeekHeadKind()
			if err != nil {
				if errors.Is(errors.EndOfQueue, err) {
					return nil
				}
				return err
			}
			if kind == queue.KindHeader {
				_, head, err := q.DequeueHeaderHead()
				if err != nil {
					return err
				}
				if magic == framing.MagicObjectEntry {
					name, ok := head.Dico.GetBytes(dicoObjectPath)
					if !ok {
						return errors.E(errors.Corrupt, "object header misses its path")
					}
					current = string(name)
					mu.Lock()
					if _, exists := files[current]; !exists {
						files[current] = []byte{}
					}
					mu.Unlock()
					pctx.Stats.CountSuccess(pipeline.ObjRegfile)
				}
				continue
			}
			_, blk, err := q.DequeueBlockHead()
			if err != nil {
				return err
			}
			mu.Lock()
			files[current] = append(files[current], blk.Data[:blk.RealSize]...)
			mu.Unlock()
		}
	}
}

func TestEmptyArchive(t *testing.T) {
	producer := pipeline.ProducerFunc(func(pctx *pipeline.Context, q *queue.Queue) error {
		_, err := q.EnqueueHeader(queue.HeadInfo{Magic: framing.MagicDatafilesEnd, Dico: dico.New()})
		return err
	})
	var got []framing.MagicBytes
	consumer := pipeline.ConsumerFunc(func(pctx *pipeline.Context, q *queue.Queue) error {
		for {
			kind, head, _, _, err := q.DequeueAny()
			if err != nil {
				if errors.Is(errors.EndOfQueue, err) {
					return nil
				}
				return err
			}
			if kind != queue.KindHeader {
				return errors.E(errors.WrongType, "expected a header item")
			}
			got = append(got, head.Magic)
		}
	})

	stats, err := pipeline.Run(context.Background(), pipeline.Options{NumTransformers: 2}, pipeline.Compress, producer, consumer)
	require.NoError(t, err)
	assert.Equal(t, []framing.MagicBytes{framing.MagicDatafilesEnd}, got)
	assert.False(t, stats.HasErrors())
}

func TestOrderAndBackpressure(t *testing.T) {
	const nblocks = 200
	const blkmax = 8
	var payload []byte
	for i := 0; i < 64; i++ {
		payload = append(payload, bytes.Repeat([]byte{byte(i)}, 32)...)
	}
	producer := pipeline.ProducerFunc(func(pctx *pipeline.Context, q *queue.Queue) error {
		for i := 0; i < nblocks; i++ {
			if pctx.FillQueueStopped() {
				return nil
			}
			data := make([]byte, len(payload))
			copy(data, payload)
			if _, err := q.EnqueueBlock(queue.BlockInfo{Data: data, RealSize: uint64(len(data))}); err != nil {
				return err
			}
		}
		_, err := q.EnqueueHeader(queue.HeadInfo{Magic: framing.MagicDatafilesEnd, Dico: dico.New()})
		return err
	})

	var next int64 = 1
	consumer := pipeline.ConsumerFunc(func(pctx *pipeline.Context, q *queue.Queue) error {
		for {
			_, _, _, itemnum, err := q.DequeueAny()
			if err != nil {
				if errors.Is(errors.EndOfQueue, err) {
					return nil
				}
				return err
			}
			if itemnum != next {
				return errors.E(errors.Invalid, "out of order dequeue")
			}
			next++
			if n := q.Blocks(); n > blkmax+1 {
				return errors.E(errors.Invalid, "backpressure exceeded")
			}
		}
	})

	opts := pipeline.Options{
		CompressAlgo:      codec.Gzip,
		CompressLevel:     6,
		NumTransformers:   4,
		MaxInFlightBlocks: blkmax,
	}
	stats, err := pipeline.Run(context.Background(), opts, pipeline.Compress, producer, consumer)
	require.NoError(t, err)
	assert.Equal(t, int64(nblocks+2), next, "consumer must see every itemnum exactly once")
	assert.False(t, stats.HasErrors())
}

func TestArchiveFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "backup.fsa")
	files := []fakeFile{
		{name: "etc/passwd", data: bytes.Repeat([]byte("root:x:0:0\n"), 500)},
		{name: "var/random.bin", data: pseudoRandomPayload(16384, 1)},
		{name: "empty", data: nil},
		{name: "small", data: []byte("tiny")},
	}
	key := []byte("correct horse battery staple")

	w, err := framing.NewFileWriter(ctx, path, framing.WriterOptions{VolumeSize: 8192})
	require.NoError(t, err)
	opts := pipeline.Options{
		CompressAlgo:    codec.Gzip,
		CompressLevel:   6,
		EncryptAlgo:     cipher.Blowfish,
		EncryptKey:      key,
		NumTransformers: 3,
	}
	_, err = pipeline.Run(ctx, opts, pipeline.Compress, fsProducer(files, 4096), pipeline.ArchiveWriteConsumer{W: w})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// The random payload does not compress, so the archive spans volumes.
	vol1, err := framing.VolumePath(path, 1)
	require.NoError(t, err)
	_, err = os.Stat(vol1)
	require.NoError(t, err)

	r, err := framing.NewFileReader(ctx, path, framing.ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	var mu sync.Mutex
	restored := make(map[string][]byte)
	stats, err := pipeline.Run(ctx, opts, pipeline.Decompress,
		pipeline.ArchiveReadProducer{R: r}, fsRestorer(&mu, restored))
	require.NoError(t, err)
	assert.False(t, stats.HasErrors())
	assert.Equal(t, int64(len(files)), stats.Successes(pipeline.ObjRegfile))

	require.Len(t, restored, len(files))
	for _, f := range files {
		if len(f.data) == 0 {
			assert.Empty(t, restored[f.name], f.name)
			continue
		}
		assert.Equal(t, f.data, restored[f.name], f.name)
	}
}

func TestRestoreZeroFillsFlippedBit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "backup.fsa")

	// Incompressible payloads are stored raw, so each block's bytes can
	// be located in the archive file.
	const nfiles = 5
	const size = 4096
	files := make([]fakeFile, nfiles)
	for i := range files {
		files[i] = fakeFile{name: string(rune('a' + i)), data: pseudoRandomPayload(size, uint32(i+1))}
	}

	w, err := framing.NewFileWriter(ctx, path, framing.WriterOptions{})
	require.NoError(t, err)
	opts := pipeline.Options{CompressAlgo: codec.Gzip, CompressLevel: 6, NumTransformers: 2}
	_, err = pipeline.Run(ctx, opts, pipeline.Compress, fsProducer(files, size), pipeline.ArchiveWriteConsumer{W: w})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Flip byte 17 of the third file's block.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	i := bytes.Index(raw, files[2].data)
	require.Greater(t, i, 0)
	raw[i+17] ^= 0x01
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	r, err := framing.NewFileReader(ctx, path, framing.ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	var mu sync.Mutex
	restored := make(map[string][]byte)
	stats, err := pipeline.Run(ctx, opts, pipeline.Decompress,
		pipeline.ArchiveReadProducer{R: r}, fsRestorer(&mu, restored))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.BlocksCorrupt())
	assert.True(t, stats.HasErrors())
	for i, f := range files {
		if i == 2 {
			assert.Equal(t, make([]byte, size), restored[f.name], "corrupt block must restore zero-filled")
		} else {
			assert.Equal(t, f.data, restored[f.name])
		}
	}
}

func TestCancellationUnblocksPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := pipeline.ProducerFunc(func(pctx *pipeline.Context, q *queue.Queue) error {
		for !pctx.FillQueueStopped() {
			if _, err := q.EnqueueBlock(queue.BlockInfo{Data: make([]byte, 64), RealSize: 64}); err != nil {
				return err
			}
		}
		return nil
	})
	// A consumer that never dequeues: the queue fills up and the
	// producer blocks on backpressure until the run is canceled.
	consumer := pipeline.ConsumerFunc(func(pctx *pipeline.Context, q *queue.Queue) error {
		<-pctx.Done()
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		opts := pipeline.Options{CompressAlgo: codec.Gzip, NumTransformers: 1, MaxInFlightBlocks: 2}
		_, _ = pipeline.Run(ctx, opts, pipeline.Compress, producer, consumer)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not unblock within 2s of cancellation")
	}
}

// pseudoRandomPayload fills a deterministic incompressible payload from
// the given seed.
func pseudoRandomPayload(n int, seed uint32) []byte {
	b := make([]byte, n)
	state := seed*2654435761 + 0x9e3779b9
	for i := range b {
		state = state*1664525 + 1013904223
		b[i] = byte(state >> 24)
	}
	return b
}
