package discovery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	idx, err := NewIndex(filepath.Join(dir, "discovery.bleve"), HashEmbedder{}, DefaultWeights())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndex_IndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.BatchIndex([]Document{
		{EntityID: "tool:/weather:forecast", EntityType: EntityTool, Text: "forecast weather temperature rain", ServerPath: "/weather", Enabled: true},
		{EntityID: "tool:/billing:invoice", EntityType: EntityTool, Text: "create invoice billing payment", ServerPath: "/billing", Enabled: true},
	}))

	result, err := idx.Search(Query{Text: "weather forecast", TopKServices: 5, TopNTools: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Services)
	require.Equal(t, "/weather", result.Services[0].ServerPath)
}

func TestIndex_DisabledDocumentsExcluded(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.BatchIndex([]Document{
		{EntityID: "tool:/weather:forecast", EntityType: EntityTool, Text: "forecast weather", ServerPath: "/weather", Enabled: false},
	}))

	result, err := idx.Search(Query{Text: "weather forecast"})
	require.NoError(t, err)
	require.Empty(t, result.Services)
}

func TestIndex_SetServerEnabledTogglesWithoutDeleting(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.IndexDocument(Document{EntityID: "tool:/weather:forecast", Text: "forecast weather", ServerPath: "/weather", Enabled: true}))
	require.NoError(t, idx.SetServerEnabled("/weather", false))

	count, err := idx.DocCount()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	result, err := idx.Search(Query{Text: "weather"})
	require.NoError(t, err)
	require.Empty(t, result.Services)
}

func TestIndex_DeleteServerRemovesDocuments(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.IndexDocument(Document{EntityID: "tool:/weather:forecast", Text: "forecast weather", ServerPath: "/weather", Enabled: true}))
	require.NoError(t, idx.DeleteServer("/weather"))

	count, err := idx.DocCount()
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestIndex_VisibilityFilter(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.BatchIndex([]Document{
		{EntityID: "tool:/weather:forecast", Text: "forecast weather", ServerPath: "/weather", Enabled: true},
		{EntityID: "tool:/secret:forecast", Text: "forecast weather secret", ServerPath: "/secret", Enabled: true},
	}))

	result, err := idx.Search(Query{
		Text:          "weather forecast",
		VisibleServer: func(path string) bool { return path == "/weather" },
	})
	require.NoError(t, err)
	for _, s := range result.Services {
		require.Equal(t, "/weather", s.ServerPath)
	}
}

func TestMinMaxNormalize(t *testing.T) {
	out := minMaxNormalize(map[string]float64{"a": 1, "b": 3, "c": 5})
	require.InDelta(t, 0, out["a"], 1e-9)
	require.InDelta(t, 0.5, out["b"], 1e-9)
	require.InDelta(t, 1, out["c"], 1e-9)
}

func TestMinMaxNormalize_EmptyInput(t *testing.T) {
	require.Empty(t, minMaxNormalize(nil))
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := HashEmbedder{}
	a := e.Embed("forecast weather")
	b := e.Embed("forecast weather")
	require.Equal(t, a, b)
	require.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-6)
}
