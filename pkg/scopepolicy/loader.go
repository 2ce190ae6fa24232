package scopepolicy

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mcpgateway/registry/pkg/log"
)

var validate = validator.New()

// ValidationError reports a structural problem in a scope-policy document.
// Loader.Reload never swaps the live snapshot when this is returned (§4.1).
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scope policy: %d problem(s): %v", len(e.Reasons), e.Reasons)
}

// Parse decodes and validates a scope-policy YAML document.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing scope policy yaml")
	}
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func validateDocument(doc *Document) error {
	var reasons []string

	knownScopes := make(map[string]bool, len(doc.UIScopes)+len(doc.MCPServerScopes)+len(doc.AgentScopes))
	for s := range doc.UIScopes {
		knownScopes[s] = true
	}
	for s := range doc.MCPServerScopes {
		knownScopes[s] = true
	}
	for s := range doc.AgentScopes {
		knownScopes[s] = true
	}

	for group, scopes := range doc.GroupMappings {
		for _, s := range scopes {
			if !knownScopes[s] {
				reasons = append(reasons, fmt.Sprintf("group_mappings[%q] references unknown scope %q", group, s))
			}
		}
	}

	for scope, rules := range doc.MCPServerScopes {
		seen := make(map[string]bool)
		for _, rule := range rules {
			if err := validate.Struct(rule); err != nil {
				reasons = append(reasons, fmt.Sprintf("mcp_server_scopes[%q]: %v", scope, err))
				continue
			}
			key := rule.Server + "|" + fmt.Sprint(rule.Methods) + "|" + fmt.Sprint(rule.Tools)
			if seen[key] {
				reasons = append(reasons, fmt.Sprintf("mcp_server_scopes[%q] has a duplicate rule for server %q", scope, rule.Server))
			}
			seen[key] = true
		}
	}

	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

// Loader owns the atomically-swapped current policy snapshot and can be
// hot-reloaded explicitly or on file-system change.
type Loader struct {
	path    string
	current atomic.Pointer[Document]
	watcher *fsnotify.Watcher
}

// NewLoader loads path once, returning an error (and no usable Loader) if
// the initial load fails.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the live, consistent policy snapshot (§3 invariant 6).
func (l *Loader) Current() *Document {
	return l.current.Load()
}

// Reload re-reads and validates the policy file, atomically swapping the
// snapshot only on success. On failure the previous snapshot remains live.
func (l *Loader) Reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return errors.Wrapf(err, "reading scope policy file %s", l.path)
	}
	doc, err := Parse(raw)
	if err != nil {
		return err
	}
	l.current.Store(doc)
	log.Infof("scope policy reloaded from %s (%d group mappings, %d ui scopes)", l.path, len(doc.GroupMappings), len(doc.UIScopes))
	return nil
}

// WatchForChanges starts an fsnotify watch on the policy file and reloads
// on every write/rename event, logging (not propagating) reload failures so
// a bad edit never takes down the process; the previous snapshot remains
// authoritative per §4.1.
func (l *Loader) WatchForChanges() (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating scope policy watcher")
	}
	if err := w.Add(l.path); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "watching scope policy file %s", l.path)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if err := l.Reload(); err != nil {
						log.Errorf("scope policy reload failed, keeping previous snapshot: %v", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Errorf("scope policy watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return w.Close()
	}, nil
}
