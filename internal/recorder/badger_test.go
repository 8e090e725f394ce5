package recorder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/recorder"
)

func TestBadgerStoreContract(t *testing.T) {
	store, err := recorder.OpenBadger("")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	exerciseStore(t, store)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := recorder.OpenBadger(dir)
	require.NoError(t, err)
	first, err := store.Append(context.Background(), record(1))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = recorder.OpenBadger(dir)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	second, err := store.Append(context.Background(), record(2))
	require.NoError(t, err)
	assert.Greater(t, second, first)

	recs, err := store.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "utterance 2", recs[0].RawText)
	assert.Equal(t, "utterance 1", recs[1].RawText)
}

func TestOpenFactory(t *testing.T) {
	store, err := recorder.Open(context.Background(), recorder.Options{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &recorder.Memory{}, store)

	_, err = recorder.Open(context.Background(), recorder.Options{Type: "postgres"})
	require.Error(t, err)
	_, err = recorder.Open(context.Background(), recorder.Options{Type: "redis"})
	require.Error(t, err)
	_, err = recorder.Open(context.Background(), recorder.Options{Type: "sqlite"})
	require.Error(t, err)
}
