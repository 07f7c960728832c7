package kv

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const expiresIndexPrefix = "expires_"

// LevelDB keeps values in a leveldb file. Every value is prefixed with its
// expiration and mirrored by an index key "expires_{nanos}_{key}".
type LevelDB struct {
	db *leveldb.DB
}

func OpenLevelDB(path string) (*LevelDB, error) {
	opts := &opt.Options{
		CompactionTableSize: 1024 * 1024 * 20,
		WriteBuffer:         1024 * 1024 * 20,
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open db file %s fail,maybe has opening: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func indexKey(nanos int64, key string) []byte {
	return []byte(fmt.Sprintf("%s%020d_%s", expiresIndexPrefix, nanos, key))
}

func encodeValue(nanos int64, value []byte) []byte {
	data := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(data, uint64(nanos))
	copy(data[8:], value)
	return data
}

func decodeValue(data []byte) (int64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("corrupted value of %d bytes", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), data[8:], nil
}

func (l *LevelDB) get(key string) (int64, []byte, error) {
	data, err := l.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	return decodeValue(data)
}

func (l *LevelDB) Get(ctx context.Context, key string) ([]byte, error) {
	_, value, err := l.get(key)
	return value, err
}

func (l *LevelDB) Set(ctx context.Context, key string, value []byte, expires time.Time) error {
	if strings.HasPrefix(key, expiresIndexPrefix) {
		return fmt.Errorf("reserved key %q", key)
	}
	nanos := expiresNano(expires)
	batch := new(leveldb.Batch)
	if old, _, err := l.get(key); err == nil && old != nanos && old != 0 {
		batch.Delete(indexKey(old, key))
	}
	batch.Put([]byte(key), encodeValue(nanos, value))
	if nanos != 0 {
		batch.Put(indexKey(nanos, key), nil)
	}
	return l.db.Write(batch, nil)
}

func (l *LevelDB) Delete(ctx context.Context, key string) error {
	old, _, err := l.get(key)
	if err == ErrNotFound {
		return nil
	}
	batch := new(leveldb.Batch)
	if err == nil && old != 0 {
		batch.Delete(indexKey(old, key))
	}
	batch.Delete([]byte(key))
	return l.db.Write(batch, nil)
}

func (l *LevelDB) ScanExpired(ctx context.Context, now time.Time, fn func(key string, value []byte) error) error {
	var (
		expired []entry
		stale   [][]byte
		seen    = mapset.NewSet()
	)
	rng := &util.Range{
		Start: []byte(expiresIndexPrefix),
		Limit: indexKey(now.UnixNano()+1, ""),
	}
	iter := l.db.NewIterator(rng, nil)
	for iter.Next() {
		idx := string(iter.Key())
		rest := strings.TrimPrefix(idx, expiresIndexPrefix)
		pos := strings.IndexByte(rest, '_')
		if pos < 0 {
			continue
		}
		key := rest[pos+1:]
		if seen.Contains(key) {
			stale = append(stale, []byte(idx))
			continue
		}
		nanos, value, err := l.get(key)
		if err != nil || nanos == 0 || nanos > now.UnixNano() {
			stale = append(stale, []byte(idx))
			continue
		}
		seen.Add(key)
		expired = append(expired, entry{key: key, value: value})
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	if len(stale) > 0 {
		batch := new(leveldb.Batch)
		for _, k := range stale {
			batch.Delete(k)
		}
		if err := l.db.Write(batch, nil); err != nil {
			return err
		}
	}
	for _, e := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of stored keys with the given prefix.
func (l *LevelDB) Count(ctx context.Context, prefix string) (int, error) {
	count := 0
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		count++
	}
	iter.Release()
	return count, iter.Error()
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
