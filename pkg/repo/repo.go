// Package repo defines the repository-layer interfaces (C3) shared by the
// two interchangeable backends: pkg/repo/fsrepo (filesystem) and
// pkg/repo/bleverepo (search-index-cluster style, backed by bleve).
package repo

import (
	"context"
	"errors"

	"github.com/mcpgateway/registry/pkg/registry"
)

// ErrNotFound is returned by Get/Toggle/Delete when path does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned by Put when an if-version precondition fails, or
// by Register-style callers when a duplicate path already exists.
var ErrConflict = errors.New("record already exists")

// ServerRepository is the C3 CRUD surface for ServerRecord.
type ServerRepository interface {
	Get(ctx context.Context, path string) (registry.ServerRecord, error)
	List(ctx context.Context) ([]registry.ServerRecord, error)
	Put(ctx context.Context, rec registry.ServerRecord, opts ...PutOption) error
	Delete(ctx context.Context, path string) error
	Toggle(ctx context.Context, path string, enabled bool) error
}

// AgentRepository is the C3 CRUD surface for AgentRecord.
type AgentRepository interface {
	Get(ctx context.Context, path string) (registry.AgentRecord, error)
	List(ctx context.Context) ([]registry.AgentRecord, error)
	Put(ctx context.Context, rec registry.AgentRecord, opts ...PutOption) error
	Delete(ctx context.Context, path string) error
	Toggle(ctx context.Context, path string, enabled bool) error
}

// PutOptions configures a Put call.
type PutOptions struct {
	IfVersion     int64 // 0 means "no precondition"
	RequireAbsent bool  // true for register-style calls: fail if path exists
}

// PutOption mutates PutOptions.
type PutOption func(*PutOptions)

// WithIfVersion makes Put fail with ErrConflict unless the stored record is
// currently at the given version.
func WithIfVersion(v int64) PutOption {
	return func(o *PutOptions) { o.IfVersion = v }
}

// RequireAbsent makes Put fail with ErrConflict if path already exists,
// used by the admin API's register endpoint (§6, §8 conflict case).
func RequireAbsent() PutOption {
	return func(o *PutOptions) { o.RequireAbsent = true }
}

func ApplyOptions(opts []PutOption) PutOptions {
	var o PutOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
