package di

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/frost/internal/bagtest"
	"github.com/ssargent/frost/pkg/api"
	"github.com/ssargent/frost/pkg/config"
	"github.com/ssargent/frost/pkg/logging"
)

type fakeStarter struct{ started bool }

func (f *fakeStarter) StartServer(context.Context, api.ServerConfig, api.MetadataSource, *slog.Logger) error {
	f.started = true
	return nil
}

type fakeFactory struct{ starter *fakeStarter }

func (f fakeFactory) CreateServerStarter() api.ServerStarter { return f.starter }

func TestNewContainer_Defaults(t *testing.T) {
	c := NewContainer(nil)
	assert.NotNil(t, c.Config())
	assert.NotNil(t, c.Logger())
	assert.NotNil(t, c.GetServerFactory())
	assert.Len(t, c.BagOptions(), 1)

	cache, err := c.MetadataCache()
	require.NoError(t, err)
	assert.Nil(t, cache, "cache is disabled by default")
	assert.NoError(t, c.Close())
}

func TestContainer_SetServerFactory(t *testing.T) {
	c := NewContainer(nil)
	starter := &fakeStarter{}
	c.SetServerFactory(fakeFactory{starter: starter})

	err := c.GetServerFactory().CreateServerStarter().StartServer(context.Background(), api.ServerConfig{}, c.MetadataSource(), c.Logger())
	require.NoError(t, err)
	assert.True(t, starter.started)
}

func TestContainer_MetadataSourceWithCache(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")

	c := NewContainer(cfg)
	c.SetLogger(logging.Discard())
	defer c.Close()

	path := bagtest.WriteFile(t, t.TempDir(), "run.bag", bagtest.TwoTopicsFixture(t).Data)
	source := c.MetadataSource()

	meta, err := source.ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), meta.MessageCount())

	cache, err := c.MetadataCache()
	require.NoError(t, err)
	require.NotNil(t, cache)
	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := source.ReadMetadata(path)
	require.NoError(t, err)
	assert.True(t, meta.Equivalent(again))
}

func TestContainer_CacheOpenFailureFallsBack(t *testing.T) {
	blocker := bagtest.WriteFile(t, t.TempDir(), "file", []byte("x"))
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = filepath.Join(blocker, "cache")

	c := NewContainer(cfg)
	c.SetLogger(logging.Discard())
	_, err := c.MetadataCache()
	assert.Error(t, err)

	path := bagtest.WriteFile(t, t.TempDir(), "run.bag", bagtest.TwoTopicsFixture(t).Data)
	meta, err := c.MetadataSource().ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), meta.MessageCount())
}
