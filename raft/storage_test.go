package raft

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemHardStateStoreRoundTrip(t *testing.T) {
	store := NewMemHardStateStore()

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, HardState{}, loaded)

	voted := NodeId{GroupID: 1, NodeID: 2}
	want := HardState{CurrentTerm: 7, VotedFor: &voted}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFileHardStateStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileHardStateStore(dir)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, HardState{}, loaded)

	voted := NodeId{GroupID: 1, NodeID: 3}
	want := HardState{CurrentTerm: 12, VotedFor: &voted}
	require.NoError(t, store.Save(want))

	reopened, err := NewFileHardStateStore(dir)
	require.NoError(t, err)
	got, err := reopened.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFileHardStateStoreNoVote(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := NewFileHardStateStore(dir)
	require.NoError(t, err)

	want := HardState{CurrentTerm: 4}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Nil(t, got.VotedFor)
}
