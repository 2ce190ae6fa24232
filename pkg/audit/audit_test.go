package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerAppendAssignsMonotonicSeq(t *testing.T) {
	ctx := context.Background()
	logger := NewFileLogger(Config{Path: filepath.Join(t.TempDir(), "audit.log")})
	defer logger.Close()

	require.NoError(t, logger.Append(ctx, Entry{Subject: "alice", Action: ActionMCPCall, Target: "/currenttime", Decision: DecisionAllow}))
	require.NoError(t, logger.Append(ctx, Entry{Subject: "alice", Action: ActionMCPCall, Target: "/currenttime", Decision: DecisionDeny, DenyReason: "no_matching_rule"}))

	entries, err := logger.Tail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, uint64(2), entries[1].Seq)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, DecisionDeny, entries[1].Decision)
}

// Same (subject, target) mutations must appear in commit order (§5, §8
// property 5's ordering half).
func TestFileLoggerPreservesOrderPerSubjectTarget(t *testing.T) {
	ctx := context.Background()
	logger := NewFileLogger(Config{Path: filepath.Join(t.TempDir(), "audit.log")})
	defer logger.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Append(ctx, Entry{Subject: "bob", Action: ActionEditServer, Target: "/weather", Decision: DecisionAllow}))
	}

	entries, err := logger.Tail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}
}

func TestFileLoggerTailBoundsRing(t *testing.T) {
	ctx := context.Background()
	logger := NewFileLogger(Config{Path: filepath.Join(t.TempDir(), "audit.log"), RingSize: 3})
	defer logger.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, logger.Append(ctx, Entry{Subject: "carol", Action: ActionMCPCall, Target: "/x", Decision: DecisionAllow}))
	}

	entries, err := logger.Tail(ctx, 100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(8), entries[0].Seq)
	assert.Equal(t, uint64(10), entries[2].Seq)
}

func TestSequenceStoreCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSequenceStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	seq, err := store.LastCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)

	require.NoError(t, store.Checkpoint(ctx, 42))
	seq, err = store.LastCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)

	require.NoError(t, store.SetRetentionDays(ctx, 7))
	cutoff, err := store.RetentionCutoff(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), cutoff, time.Minute)
}
