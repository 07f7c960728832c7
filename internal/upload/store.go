package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sjqzhang/seelog"
	"github.com/sjqzhang/tusd/uid"

	"github.com/sjqzhang/go-resumable/internal/blob"
	"github.com/sjqzhang/go-resumable/internal/kv"
	"github.com/sjqzhang/go-resumable/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultExpiration = 48 * time.Hour

type Options struct {
	// TempDir receives assembled files, os.TempDir() when empty.
	TempDir    string
	Expiration time.Duration
	// KeepPartsOnAssemble leaves parts and metadata in place after Assemble,
	// which otherwise deletes them once the file is built.
	KeepPartsOnAssemble bool
	// Registerer receives the store metrics; nil leaves them unregistered.
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Store tracks resumable uploads as numbered chunk parts in a blob store and
// a metadata record per upload in a table.
type Store struct {
	blobs   blob.Store
	table   kv.Table
	cache   *assemblyCache
	opts    Options
	metrics *storeMetrics
}

func NewStore(blobs blob.Store, table kv.Table, opts Options) *Store {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Expiration <= 0 {
		opts.Expiration = DefaultExpiration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		blobs:   blobs,
		table:   table,
		cache:   newAssemblyCache(),
		opts:    opts,
		metrics: newStoreMetrics(opts.Registerer),
	}
}

func (s *Store) now() time.Time {
	return s.opts.Now()
}

func (s *Store) load(ctx context.Context, id string) (*model.UploadMetadata, error) {
	data, err := s.table.Get(ctx, model.Key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var m model.UploadMetadata
	if err = json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", id, err)
	}
	if !m.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &m, nil
}

func (s *Store) save(ctx context.Context, m *model.UploadMetadata) error {
	m.Touch(s.now(), s.opts.Expiration)
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.table.Set(ctx, model.Key(m.ID), data, m.Expires)
}

// Create allocates a new upload. A nil length defers the declaration.
func (s *Store) Create(ctx context.Context, length *int64, metadata string) (string, error) {
	if length != nil && *length < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, *length)
	}
	m := &model.UploadMetadata{
		ID:             uid.Uid(),
		UploadMetadata: metadata,
		Created:        true,
		Expires:        s.now().Add(s.opts.Expiration),
	}
	if length != nil {
		l := *length
		m.UploadLength = &l
	}
	if err := s.save(ctx, m); err != nil {
		return "", err
	}
	s.metrics.created.Inc()
	log.Infof("upload %s created, length %v", m.ID, lengthString(m))
	return m.ID, nil
}

func (s *Store) SetDeclaredLength(ctx context.Context, id string, length int64) error {
	m, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if m.LengthKnown() {
		return fmt.Errorf("%w: %s has %d", ErrLengthDeclared, id, m.Length())
	}
	if length < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if length < m.WrittenBytes {
		return fmt.Errorf("%w: %d bytes already written, declared %d", ErrSizeExceeded, m.WrittenBytes, length)
	}
	m.UploadLength = &length
	return s.save(ctx, m)
}

func (s *Store) SetExpiration(ctx context.Context, id string, expires time.Time) error {
	m, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	m.Expires = expires
	return s.save(ctx, m)
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Info returns a copy of the metadata record.
func (s *Store) Info(ctx context.Context, id string) (*model.UploadMetadata, error) {
	return s.load(ctx, id)
}

// GetDeclaredLength reports the declared length and whether it is known yet.
func (s *Store) GetDeclaredLength(ctx context.Context, id string) (int64, bool, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return 0, false, err
	}
	return m.Length(), m.LengthKnown(), nil
}

func (s *Store) GetMetadataBlob(ctx context.Context, id string) (string, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	return m.UploadMetadata, nil
}

func (s *Store) GetOffset(ctx context.Context, id string) (int64, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	return m.WrittenBytes, nil
}

func (s *Store) GetExpiration(ctx context.Context, id string) (time.Time, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	return m.Expires, nil
}

// Delete removes all parts and the metadata of an upload. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	m, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.cleanup(ctx, m)
}

func (s *Store) cleanup(ctx context.Context, m *model.UploadMetadata) error {
	// one more than written, a failed append may have left its part behind
	for i := 0; i <= m.WrittenParts; i++ {
		if err := s.blobs.Delete(ctx, model.PartName(m.ID, i)); err != nil {
			return err
		}
	}
	return s.table.Delete(ctx, model.Key(m.ID))
}

// ListExpired returns the ids whose expiration has passed.
func (s *Store) ListExpired(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.table.ScanExpired(ctx, s.now(), func(key string, value []byte) error {
		if id, ok := model.IDFromKey(key); ok {
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// SweepExpired deletes every expired upload and returns how many were removed.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	count := 0
	now := s.now()
	err := s.table.ScanExpired(ctx, now, func(key string, value []byte) error {
		id, ok := model.IDFromKey(key)
		if !ok {
			return nil
		}
		var m model.UploadMetadata
		if err := json.Unmarshal(value, &m); err != nil {
			log.Warnf("sweep: drop undecodable metadata %s: %v", id, err)
			return s.table.Delete(ctx, key)
		}
		m.ID = id
		if !m.Expired(now) {
			// the index is behind the record
			return nil
		}
		if err := s.cleanup(ctx, &m); err != nil {
			return fmt.Errorf("sweep %s: %w", id, err)
		}
		count++
		s.metrics.swept.Inc()
		return nil
	})
	if count > 0 {
		log.Infof("sweep removed %d expired uploads", count)
	}
	return count, err
}

func lengthString(m *model.UploadMetadata) string {
	if !m.LengthKnown() {
		return "deferred"
	}
	return fmt.Sprint(m.Length())
}
