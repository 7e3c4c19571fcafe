package metacache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/frost/internal/bagtest"
	"github.com/ssargent/frost/pkg/bag"
)

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_PutGet(t *testing.T) {
	c := openCache(t)
	f := bagtest.TwoTopicsFixture(t)
	b, err := bag.FromBytes(f.Data)
	require.NoError(t, err)

	mod := time.Unix(1_700_000_000, 42)
	require.NoError(t, c.Put("/data/a.bag", int64(len(f.Data)), mod, b.Metadata()))

	got, ok, err := c.Get("/data/a.bag", int64(len(f.Data)), mod)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, b.Metadata().Equivalent(got))
	assert.Equal(t, b.Metadata().TopicMessageCounts(), got.TopicMessageCounts())
	assert.Equal(t, b.Metadata().IndexMode, got.IndexMode)

	_, ok, err = c.Get("/data/a.bag", int64(len(f.Data))+1, mod)
	require.NoError(t, err)
	assert.False(t, ok, "size change invalidates the entry")

	_, ok, err = c.Get("/data/a.bag", int64(len(f.Data)), mod.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "mtime change invalidates the entry")

	_, ok, err = c.Get("/data/other.bag", 1, mod)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_PutReplaces(t *testing.T) {
	c := openCache(t)
	b, err := bag.FromBytes(bagtest.TwoTopicsFixture(t).Data)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put("/data/a.bag", 10, time.Unix(int64(i), 0), b.Metadata()))
	}
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Delete("/data/a.bag"))
	n, err = c.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, c.Delete("/data/a.bag"))
}

func TestCache_ConcurrentPutSamePath(t *testing.T) {
	c := openCache(t)
	b, err := bag.FromBytes(bagtest.TwoTopicsFixture(t).Data)
	require.NoError(t, err)
	meta := b.Metadata()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.Put("/data/a.bag", 10, time.Unix(int64(i), 0), meta)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "each path keeps exactly one entry")

	removed, err := c.Prune(time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestCache_Prune(t *testing.T) {
	c := openCache(t)
	b, err := bag.FromBytes(bagtest.TwoTopicsFixture(t).Data)
	require.NoError(t, err)

	for _, p := range []string{"/a.bag", "/b.bag", "/c.bag"} {
		require.NoError(t, c.Put(p, 10, time.Unix(0, 0), b.Metadata()))
	}

	removed, err := c.Prune(time.Time{}, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = c.Prune(time.Time{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err = c.Prune(time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	for _, p := range []string{"/a.bag", "/b.bag", "/c.bag"} {
		_, ok, err := c.Get(p, 10, time.Unix(0, 0))
		require.NoError(t, err)
		assert.False(t, ok, p)
	}
}

func TestReadMetadata(t *testing.T) {
	c := openCache(t)
	dir := t.TempDir()
	f := bagtest.TwoTopicsFixture(t)
	path := bagtest.WriteFile(t, dir, "run.bag", f.Data)

	first, err := ReadMetadata(c, path)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), first.MessageCount())
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second, err := ReadMetadata(c, path)
	require.NoError(t, err)
	assert.True(t, first.Equivalent(second))

	// Rewriting the file with other content must not serve the old entry.
	b := bagtest.New()
	conn := b.AddConnection("/only", "std_msgs/Empty")
	b.AddChunk("none", bagtest.Msg(conn, bagtest.ScenarioStart, nil))
	require.NoError(t, os.WriteFile(path, b.MustBuild(t).Data, 0o644))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Minute)))

	third, err := ReadMetadata(c, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/only"}, third.Topics())

	direct, err := ReadMetadata(nil, path)
	require.NoError(t, err)
	assert.True(t, third.Equivalent(direct))
}
