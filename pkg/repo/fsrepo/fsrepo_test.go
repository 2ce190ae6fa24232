package fsrepo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

func TestServerStore_PutGetList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)

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

	_, err = store.Get(context.Background(), "/missing")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestServerStore_RequireAbsentConflict(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)

	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather"}
	require.NoError(t, store.Put(context.Background(), rec, repo.RequireAbsent()))

	err = store.Put(context.Background(), rec, repo.RequireAbsent())
	require.ErrorIs(t, err, repo.ErrConflict)
}

func TestServerStore_IfVersionPrecondition(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)

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

	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather", Enabled: false}
	require.NoError(t, store.Put(context.Background(), rec))

	require.NoError(t, store.Toggle(context.Background(), "/weather", true))
	got, err := store.Get(context.Background(), "/weather")
	require.NoError(t, err)
	require.True(t, got.Enabled)
}

func TestServerStore_DeleteRemovesFileAndCache(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)

	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather"}
	require.NoError(t, store.Put(context.Background(), rec))
	require.NoError(t, store.Delete(context.Background(), "/weather"))

	_, err = store.Get(context.Background(), "/weather")
	require.ErrorIs(t, err, repo.ErrNotFound)

	_, statErr := os.Stat(filepath.Join(dir, "ns1", "servers", SafeFilename("/weather")+".json"))
	require.True(t, os.IsNotExist(statErr))
}

func TestServerStore_StateFileReflectsEnabled(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), registry.ServerRecord{Path: "/a", Enabled: true}))
	require.NoError(t, store.Put(context.Background(), registry.ServerRecord{Path: "/b", Enabled: false}))

	raw, err := os.ReadFile(filepath.Join(dir, "ns1", "servers_state.json"))
	require.NoError(t, err)

	var state map[string]bool
	require.NoError(t, json.Unmarshal(raw, &state))
	require.True(t, state["/a"])
	require.False(t, state["/b"])
}

func TestServerStore_ReopenScansExistingRecords(t *testing.T) {
	dir := t.TempDir()
	store1, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)
	require.NoError(t, store1.Put(context.Background(), registry.ServerRecord{Path: "/weather", ServerName: "weather"}))

	store2, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)
	got, err := store2.Get(context.Background(), "/weather")
	require.NoError(t, err)
	require.Equal(t, "weather", got.ServerName)
}

func TestServerStore_WatchForExternalChangesPicksUpRename(t *testing.T) {
	dir := t.TempDir()
	store, err := NewServerStore(dir, "ns1")
	require.NoError(t, err)

	stop, err := store.WatchForExternalChanges()
	require.NoError(t, err)
	defer func() { _ = stop() }()

	serverDir := filepath.Join(dir, "ns1", "servers")
	rec := registry.ServerRecord{Path: "/weather", ServerName: "weather-v2"}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	tmp := filepath.Join(serverDir, "tmp.json")
	require.NoError(t, os.WriteFile(tmp, raw, 0o644))
	target := filepath.Join(serverDir, SafeFilename("/weather")+".json")
	require.NoError(t, os.Rename(tmp, target))

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), "/weather")
		return err == nil && got.ServerName == "weather-v2"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAgentStore_PutGetToggle(t *testing.T) {
	dir := t.TempDir()
	store, err := NewAgentStore(dir, "ns1")
	require.NoError(t, err)

	rec := registry.AgentRecord{Path: "/agents/helper", Name: "helper", Enabled: false}
	require.NoError(t, store.Put(context.Background(), rec))

	require.NoError(t, store.Toggle(context.Background(), "/agents/helper", true))
	got, err := store.Get(context.Background(), "/agents/helper")
	require.NoError(t, err)
	require.True(t, got.Enabled)
}

func TestSafeFilename(t *testing.T) {
	require.Equal(t, "_weather", SafeFilename("/weather"))
	require.Equal(t, "_agents_helper-v1.2", SafeFilename("/agents/helper-v1.2"))
}
