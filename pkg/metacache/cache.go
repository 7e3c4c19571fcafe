// Package metacache persists bag metadata between runs.
//
// Entries are keyed by the absolute path of a bag and are valid only while
// the file's size and modification time are unchanged. Each stored entry
// gets a KSUID, so entries sort by creation time and pruning removes the
// oldest first.
package metacache

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ssargent/frost/pkg/bag"
)

var (
	pathPrefix  = []byte("path/")
	entryPrefix = []byte("entry/")
)

// entry is the stored value.
type entry struct {
	Path     string        `msgpack:"path"`
	Size     int64         `msgpack:"size"`
	ModTime  int64         `msgpack:"mod_time"`
	Metadata *bag.Metadata `msgpack:"metadata"`
}

// Cache is a pebble-backed metadata cache. It is safe for concurrent use.
type Cache struct {
	db     *pebble.DB
	logger *slog.Logger
	// mutex serializes read-modify-write updates of the path mapping.
	mutex sync.Mutex
}

// Open opens or creates a cache in dir.
func Open(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache")
	}
	return &Cache{db: db, logger: logger.With("component", "metacache")}, nil
}

// Get returns the cached metadata for path if the entry matches the given
// size and modification time.
func (c *Cache) Get(path string, size int64, modTime time.Time) (*bag.Metadata, bool, error) {
	id, ok, err := c.lookupID(path)
	if err != nil || !ok {
		return nil, false, err
	}
	e, ok, err := c.readEntry(id)
	if err != nil || !ok {
		return nil, false, err
	}
	if e.Size != size || e.ModTime != modTime.UnixNano() {
		c.logger.Debug("stale cache entry", "path", path, "id", id.String())
		return nil, false, nil
	}
	return e.Metadata, true, nil
}

// Put stores meta for path, replacing any previous entry.
func (c *Cache) Put(path string, size int64, modTime time.Time, meta *bag.Metadata) error {
	value, err := msgpack.Marshal(&entry{
		Path:     path,
		Size:     size,
		ModTime:  modTime.UnixNano(),
		Metadata: meta,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode cache entry")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	batch := c.db.NewBatch()
	defer batch.Close()

	if old, ok, err := c.lookupID(path); err != nil {
		return err
	} else if ok {
		if err := batch.Delete(entryKey(old), nil); err != nil {
			return err
		}
	}
	id := ksuid.New()
	if err := batch.Set(entryKey(id), value, nil); err != nil {
		return err
	}
	if err := batch.Set(pathKey(path), id.Bytes(), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.NoSync)
}

// Delete removes the entry for path.
func (c *Cache) Delete(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	id, ok, err := c.lookupID(path)
	if err != nil || !ok {
		return err
	}
	batch := c.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(entryKey(id), nil); err != nil {
		return err
	}
	if err := batch.Delete(pathKey(path), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.NoSync)
}

// Len returns the number of entries.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.eachEntry(func(ksuid.KSUID) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// Prune removes entries created before cutoff and then the oldest entries
// beyond keep. keep <= 0 means no count limit. It returns the number of
// entries removed.
func (c *Cache) Prune(cutoff time.Time, keep int) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var ids []ksuid.KSUID
	if err := c.eachEntry(func(id ksuid.KSUID) (bool, error) {
		ids = append(ids, id)
		return true, nil
	}); err != nil {
		return 0, err
	}

	// ids are oldest first.
	remove := 0
	for remove < len(ids) && ids[remove].Time().Before(cutoff) {
		remove++
	}
	if keep > 0 && len(ids)-remove > keep {
		remove = len(ids) - keep
	}

	for _, id := range ids[:remove] {
		e, ok, err := c.readEntry(id)
		if err != nil {
			return 0, err
		}
		batch := c.db.NewBatch()
		if err := batch.Delete(entryKey(id), nil); err != nil {
			batch.Close()
			return 0, err
		}
		if ok {
			// Only drop the path mapping if it still points at this entry.
			if cur, found, err := c.lookupID(e.Path); err == nil && found && cur == id {
				if err := batch.Delete(pathKey(e.Path), nil); err != nil {
					batch.Close()
					return 0, err
				}
			}
		}
		if err := batch.Commit(pebble.NoSync); err != nil {
			batch.Close()
			return 0, err
		}
		batch.Close()
	}
	if remove > 0 {
		c.logger.Info("pruned cache", "removed", remove, "remaining", len(ids)-remove)
	}
	return remove, nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) lookupID(path string) (ksuid.KSUID, bool, error) {
	data, closer, err := c.db.Get(pathKey(path))
	if errors.Is(err, pebble.ErrNotFound) {
		return ksuid.Nil, false, nil
	}
	if err != nil {
		return ksuid.Nil, false, err
	}
	defer closer.Close()
	id, err := ksuid.FromBytes(data)
	if err != nil {
		return ksuid.Nil, false, errors.Wrap(err, "corrupt cache path entry")
	}
	return id, true, nil
}

func (c *Cache) readEntry(id ksuid.KSUID) (*entry, bool, error) {
	data, closer, err := c.db.Get(entryKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var e entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, false, errors.Wrap(err, "failed to decode cache entry")
	}
	return &e, true, nil
}

func (c *Cache) eachEntry(fn func(ksuid.KSUID) (bool, error)) error {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: entryPrefix,
		UpperBound: prefixEnd(entryPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id, err := ksuid.FromBytes(bytes.TrimPrefix(iter.Key(), entryPrefix))
		if err != nil {
			return errors.Wrap(err, "corrupt cache entry key")
		}
		more, err := fn(id)
		if err != nil || !more {
			return err
		}
	}
	return iter.Error()
}

func pathKey(path string) []byte {
	return append(append([]byte(nil), pathPrefix...), path...)
}

func entryKey(id ksuid.KSUID) []byte {
	return append(append([]byte(nil), entryPrefix...), id.Bytes()...)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

// ReadMetadata returns the metadata of the bag at path, from the cache when
// the file is unchanged, otherwise by reading the bag and caching the
// result. A nil cache reads the bag directly.
func ReadMetadata(c *Cache, path string, opts ...bag.Option) (*bag.Metadata, error) {
	if c == nil {
		return bag.ReadMetadata(path, opts...)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve bag path")
	}
	st, err := os.Stat(abs)
	if err != nil {
		return bag.ReadMetadata(path, opts...)
	}

	meta, ok, err := c.Get(abs, st.Size(), st.ModTime())
	if err != nil {
		c.logger.Warn("cache read failed", "path", abs, "error", err)
	} else if ok {
		c.logger.Debug("cache hit", "path", abs)
		return meta, nil
	}

	meta, err = bag.ReadMetadata(abs, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Put(abs, st.Size(), st.ModTime(), meta); err != nil {
		c.logger.Warn("cache write failed", "path", abs, "error", err)
	}
	return meta, nil
}
