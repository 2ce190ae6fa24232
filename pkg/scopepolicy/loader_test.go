package scopepolicy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
group_mappings:
  lob1:
    - lob1-ro
ui_scopes:
  lob1-ro:
    visible_servers: ["/currenttime"]
    visible_agents: []
mcp_server_scopes:
  lob1-ro:
    - server: "/currenttime"
      methods: ["*"]
      tools: ["*"]
`

func TestParse_Valid(t *testing.T) {
	doc, err := Parse([]byte(validDoc))
	require.NoError(t, err)
	assert.Equal(t, []string{"lob1-ro"}, doc.GroupMappings["lob1"])
}

func TestParse_UnknownScopeReference(t *testing.T) {
	bad := `
group_mappings:
  lob1:
    - does-not-exist
ui_scopes: {}
mcp_server_scopes: {}
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestScopesFor_DropsUnknownGroups(t *testing.T) {
	doc, err := Parse([]byte(validDoc))
	require.NoError(t, err)

	scopes, unknown := doc.ScopesFor([]string{"lob1", "nonexistent-group"})
	assert.Equal(t, []string{"lob1-ro"}, scopes)
	assert.Equal(t, []string{"nonexistent-group"}, unknown)
}

func TestLoader_ReloadPreservesSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o644))

	l, err := NewLoader(path)
	require.NoError(t, err)
	original := l.Current()

	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))
	err = l.Reload()
	require.Error(t, err)

	assert.Same(t, original, l.Current())
}

func TestLoader_ReloadSwapsOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o644))

	l, err := NewLoader(path)
	require.NoError(t, err)
	original := l.Current()

	updated := validDoc + "\n" // trivially different content, still valid
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, l.Reload())

	assert.NotSame(t, original, l.Current())
}
