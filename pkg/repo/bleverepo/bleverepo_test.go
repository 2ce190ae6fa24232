package bleverepo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

func TestServerStore_PutGetList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)
	defer store.Close()

	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather", Enabled: true}
	require.NoError(t, store.Put(context.Background(), rec))

	got, err := store.Get(context.Background(), "/weather")
	require.NoError(t, err)
	require.Equal(t, "weather", got.ServerName)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestServerStore_GetMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), "/missing")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestServerStore_RequireAbsentConflict(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)
	defer store.Close()

	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather"}
	require.NoError(t, store.Put(context.Background(), rec, repo.RequireAbsent()))

	err = store.Put(context.Background(), rec, repo.RequireAbsent())
	require.ErrorIs(t, err, repo.ErrConflict)
}

func TestServerStore_IfVersionPrecondition(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)
	defer store.Close()

	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather"}
	require.NoError(t, store.Put(context.Background(), rec))

	got, err := store.Get(context.Background(), "/weather")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Revision)

	got.ServerName = "weather-v2"
	require.NoError(t, store.Put(context.Background(), got, repo.WithIfVersion(1)))

	stale := got
	stale.ServerName = "weather-v3"
	err = store.Put(context.Background(), stale, repo.WithIfVersion(1))
	require.ErrorIs(t, err, repo.ErrConflict)
}

func TestServerStore_Toggle(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)
	defer store.Close()

	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather", Enabled: false}
	require.NoError(t, store.Put(context.Background(), rec))
	require.NoError(t, store.Toggle(context.Background(), "/weather", true))

	got, err := store.Get(context.Background(), "/weather")
	require.NoError(t, err)
	require.True(t, got.Enabled)
}

func TestServerStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)
	defer store.Close()

	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather"}
	require.NoError(t, store.Put(context.Background(), rec))
	require.NoError(t, store.Delete(context.Background(), "/weather"))

	_, err = store.Get(context.Background(), "/weather")
	require.ErrorIs(t, err, repo.ErrNotFound)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 0)
}

func TestAgentStore_PutGetToggle(t *testing.T) {
	dir := t.TempDir()
	store, err := NewAgentStore(dir, "ns1")
	require.NoError(t, err)
	defer store.Close()

	rec := registry.AgentRecord{Path: "/agents/helper", Name: "helper", Enabled: false}
	require.NoError(t, store.Put(context.Background(), rec))
	require.NoError(t, store.Toggle(context.Background(), "/agents/helper", true))

	got, err := store.Get(context.Background(), "/agents/helper")
	require.NoError(t, err)
	require.True(t, got.Enabled)
}

func TestIndexDir(t *testing.T) {
	require.Equal(t, filepath.ToSlash("/data/ns1/servers.bleve"), indexDir("/data", "ns1", "servers"))
	require.Equal(t, filepath.ToSlash("/data/default/agents.bleve"), indexDir("/data", "", "agents"))
}
