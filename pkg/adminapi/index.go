package adminapi

import (
	"context"
	"strings"

	"github.com/mcpgateway/registry/pkg/discovery"
	"github.com/mcpgateway/registry/pkg/registry"
)

// RebuildIndex performs the "full rebuild" §4.5 build-time allows: it lists
// every server and agent from C3 and re-derives their tool/skill documents
// from scratch. Called once at startup (the on-disk bleve index may be
// stale relative to C3 after a restart) and exposed to the CLI as
// `registry-gateway reindex`.
func (a *API) RebuildIndex(ctx context.Context) error {
	if a.Index == nil {
		return nil
	}
	servers, err := a.Servers.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range servers {
		if err := a.reindexServer(rec); err != nil {
			return err
		}
	}
	agents, err := a.Agents.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range agents {
		if err := a.reindexAgent(rec); err != nil {
			return err
		}
	}
	return nil
}

// reindexServer rebuilds every tool document for rec, replacing whatever was
// previously indexed for its path (§4.5 build-time: "toggling a server off
// marks its tool docs enabled=false rather than deleting them" — a full
// register/edit instead re-derives the document set from scratch).
func (a *API) reindexServer(rec registry.ServerRecord) error {
	if a.Index == nil {
		return nil
	}
	if err := a.Index.DeleteServer(rec.Path); err != nil {
		return err
	}
	docs := make([]discovery.Document, 0, len(rec.ToolList))
	for _, tool := range rec.ToolList {
		docs = append(docs, discovery.Document{
			EntityID:   rec.Path + "#" + tool.Name,
			EntityType: discovery.EntityTool,
			Text:       toolSearchText(tool),
			ServerPath: rec.Path,
			Enabled:    rec.Enabled,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	return a.Index.BatchIndex(docs)
}

func toolSearchText(t registry.ToolDescriptor) string {
	parts := []string{t.Name, t.ParsedDescription.Main}
	for _, v := range t.ParsedDescription.Args {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

// reindexAgent is the agent analogue of reindexServer: one document per
// advertised skill.
func (a *API) reindexAgent(rec registry.AgentRecord) error {
	if a.Index == nil {
		return nil
	}
	if err := a.Index.DeleteServer(rec.Path); err != nil {
		return err
	}
	docs := make([]discovery.Document, 0, len(rec.Skills))
	for _, skill := range rec.Skills {
		docs = append(docs, discovery.Document{
			EntityID:   rec.Path + "#" + skill.ID,
			EntityType: discovery.EntitySkill,
			Text:       strings.Join(append([]string{skill.Name, skill.Description}, skill.Tags...), " "),
			ServerPath: rec.Path,
			Enabled:    rec.Enabled,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	return a.Index.BatchIndex(docs)
}
