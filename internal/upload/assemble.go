package upload

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	log "github.com/sjqzhang/seelog"

	"github.com/sjqzhang/go-resumable/internal/blob"
	"github.com/sjqzhang/go-resumable/internal/model"
)

var supportedAlgorithms = mapset.NewSet("sha1")

// SupportedAlgorithms lists the checksum algorithms VerifyChecksum accepts.
func SupportedAlgorithms() []string {
	algorithms := make([]string, 0, supportedAlgorithms.Cardinality())
	for v := range supportedAlgorithms.Iter() {
		algorithms = append(algorithms, v.(string))
	}
	return algorithms
}

func NewHash(algorithm string) (hash.Hash, error) {
	algorithm = strings.ToLower(algorithm)
	if !supportedAlgorithms.Contains(algorithm) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	return sha1.New(), nil
}

// Checksum digests everything r yields.
func Checksum(r io.Reader, algorithm string) ([]byte, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return nil, err
	}
	if _, err = io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// File is one caller's handle on an assembled upload. Handles returned for
// the same id while an assembly is held share the same temp file.
type File struct {
	ID       string
	Size     int64
	Name     string
	MimeType string
	Metadata map[string]string

	a       *assembly
	release func()
	once    sync.Once
}

// Reader returns an independent seekable view of the content.
func (f *File) Reader() io.ReadSeeker {
	return io.NewSectionReader(f.a.file, 0, f.a.size)
}

// Close releases the handle. The temp file goes away with the last handle.
func (f *File) Close() error {
	f.once.Do(f.release)
	return nil
}

type assembly struct {
	done    chan struct{}
	reclaim sync.Once
	file    *os.File
	size    int64
	meta    *model.UploadMetadata
	err     error
	refs    int
}

// assemblyCache makes concurrent Assemble calls for one id share a build.
type assemblyCache struct {
	mu      sync.Mutex
	entries map[string]*assembly
}

func newAssemblyCache() *assemblyCache {
	return &assemblyCache{entries: make(map[string]*assembly)}
}

func (c *assemblyCache) acquire(ctx context.Context, id string, build func(*assembly)) (*File, error) {
	c.mu.Lock()
	a, ok := c.entries[id]
	if !ok {
		a = &assembly{done: make(chan struct{})}
		c.entries[id] = a
	}
	a.refs++
	if !ok {
		// the build holds its own reference
		a.refs++
	}
	c.mu.Unlock()

	if !ok {
		go func() {
			build(a)
			c.release(id, a)
			close(a.done)
		}()
	}
	select {
	case <-a.done:
	case <-ctx.Done():
		c.release(id, a)
		return nil, ctx.Err()
	}
	if a.err != nil {
		c.release(id, a)
		return nil, a.err
	}
	values := a.meta.Values()
	return &File{
		ID:       id,
		Size:     a.size,
		Name:     model.FileName(values),
		MimeType: model.MimeType(values),
		Metadata: values,
		a:        a,
		release:  func() { c.release(id, a) },
	}, nil
}

func (c *assemblyCache) release(id string, a *assembly) {
	c.mu.Lock()
	a.refs--
	last := a.refs == 0
	if last && c.entries[id] == a {
		delete(c.entries, id)
	}
	c.mu.Unlock()
	if last && a.file != nil {
		name := a.file.Name()
		a.file.Close()
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			log.Warnf("remove assembled file %s: %v", name, err)
		}
	}
}

// Len is the number of assemblies currently held.
func (c *assemblyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Assemble concatenates all parts of an upload into a temp file and, unless
// KeepPartsOnAssemble is set, deletes the parts and metadata. Concurrent
// callers for the same id share one assembly, which is dropped once every
// handle is closed.
func (s *Store) Assemble(ctx context.Context, id string) (*File, error) {
	f, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.opts.KeepPartsOnAssemble {
		f.a.reclaim.Do(func() {
			if err := s.cleanup(context.WithoutCancel(ctx), f.a.meta); err != nil {
				log.Warnf("upload %s: reclaim after assembly: %v", id, err)
			}
		})
	}
	return f, nil
}

// KeepsParts reports whether Assemble leaves the upload in place.
func (s *Store) KeepsParts() bool {
	return s.opts.KeepPartsOnAssemble
}

// Open assembles like Assemble but never reclaims, for readers of a live
// upload. The shared build outlives the caller that started it; a cancelled
// ctx only abandons this caller's wait.
func (s *Store) Open(ctx context.Context, id string) (*File, error) {
	build := context.WithoutCancel(ctx)
	return s.cache.acquire(ctx, id, func(a *assembly) {
		a.meta, a.file, a.size, a.err = s.assemble(build, id)
	})
}

func (s *Store) assemble(ctx context.Context, id string) (*model.UploadMetadata, *os.File, int64, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, 0, err
	}
	if m.WrittenParts == 0 {
		return nil, nil, 0, fmt.Errorf("%w: %s has no parts", ErrNotFound, id)
	}
	start := time.Now()
	tmp, err := os.CreateTemp(s.opts.TempDir, "assemble-"+id+"-*")
	if err != nil {
		return nil, nil, 0, err
	}
	fail := func(err error) (*model.UploadMetadata, *os.File, int64, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, nil, 0, err
	}
	for i := 0; i < m.WrittenParts; i++ {
		if err = s.blobs.Get(ctx, model.PartName(id, i), tmp, blob.Range{}); err != nil {
			return fail(fmt.Errorf("read part %d of %s: %w", i, id, err))
		}
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fail(err)
	}
	s.metrics.assemblies.Inc()
	s.metrics.assemblyDuration.Observe(time.Since(start).Seconds())
	return m, tmp, size, nil
}

// VerifyChecksum assembles the upload and compares its digest with expected.
// The upload itself is left untouched.
func (s *Store) VerifyChecksum(ctx context.Context, id, algorithm string, expected []byte) (bool, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return false, err
	}
	f, err := s.Open(ctx, id)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if _, err = io.Copy(h, f.Reader()); err != nil {
		return false, err
	}
	return bytes.Equal(h.Sum(nil), expected), nil
}
