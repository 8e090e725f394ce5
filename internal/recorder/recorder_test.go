package recorder_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/recorder"
)

type failingStore struct{}

func (failingStore) Append(context.Context, protocol.Record) (uint64, error) {
	return 0, errors.New("disk full")
}

func (failingStore) History(context.Context, int) ([]protocol.Record, error) {
	return nil, errors.New("disk full")
}

func (failingStore) Close() error { return nil }

type countingObserver struct{ n int }

func (c *countingObserver) RecorderFailed() { c.n++ }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(i int) protocol.Record {
	now := time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC)
	return protocol.Record{
		Session:    "s",
		Timestamp:  now,
		RawText:    fmt.Sprintf("utterance %d", i),
		Status:     protocol.StatusSuccess,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func TestRecorderDegradedMode(t *testing.T) {
	obs := &countingObserver{}
	r := recorder.New(failingStore{}, quietLogger(), obs)

	first := r.Record(context.Background(), record(1))
	second := r.Record(context.Background(), record(2))

	assert.True(t, recorder.IsDegraded(first))
	assert.True(t, recorder.IsDegraded(second))
	assert.Less(t, first, second)
	assert.Equal(t, 2, obs.n)
}

func TestMemoryHistoryNewestFirst(t *testing.T) {
	r := recorder.New(recorder.NewMemory(), quietLogger(), nil)
	for i := 1; i <= 12; i++ {
		seq := r.Record(context.Background(), record(i))
		assert.Equal(t, uint64(i), seq)
		assert.False(t, recorder.IsDegraded(seq))
	}

	recs, err := r.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, recorder.DefaultHistoryLimit)
	assert.Equal(t, uint64(12), recs[0].Sequence)
	assert.Equal(t, "utterance 12", recs[0].RawText)
	assert.Equal(t, uint64(3), recs[9].Sequence)
}

func TestMemoryClosed(t *testing.T) {
	m := recorder.NewMemory()
	require.NoError(t, m.Close())
	_, err := m.Append(context.Background(), record(1))
	require.ErrorIs(t, err, recorder.ErrClosed)
}

// exerciseStore checks the Store contract shared by every backend.
func exerciseStore(t *testing.T, store recorder.Store) {
	t.Helper()
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seqs = map[uint64]struct{}{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := store.Append(ctx, record(i))
			assert.NoError(t, err)
			mu.Lock()
			seqs[seq] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Len(t, seqs, 20, "sequence ids must be unique")

	last, err := store.Append(ctx, record(99))
	require.NoError(t, err)
	for seq := range seqs {
		assert.Less(t, seq, last)
	}

	recs, err := store.History(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	assert.Equal(t, last, recs[0].Sequence)
	assert.Equal(t, "utterance 99", recs[0].RawText)
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i-1].Sequence, recs[i].Sequence)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, recorder.NewMemory())
}
