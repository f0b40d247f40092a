package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIterator_Scripted(t *testing.T) {
	errScan := errors.New("scan failed")

	tests := []struct {
		name        string
		replies     []scanReply
		wantBatches [][]string
		wantCalls   []uint64
		wantErr     error
	}{
		{
			name:      "empty keyspace",
			replies:   []scanReply{{cursor: 0}},
			wantCalls: []uint64{0},
		},
		{
			name: "non-empty batch at cursor zero rescans once",
			replies: []scanReply{
				{keys: []string{"dev:1", "dev:2"}, cursor: 0},
				{cursor: 0},
			},
			wantBatches: [][]string{{"dev:1", "dev:2"}},
			wantCalls:   []uint64{0, 0},
		},
		{
			name: "empty batch with non-zero cursor continues",
			replies: []scanReply{
				{cursor: 17},
				{keys: []string{"dev:9"}, cursor: 0},
				{cursor: 0},
			},
			wantBatches: [][]string{nil, {"dev:9"}},
			wantCalls:   []uint64{0, 17, 0},
		},
		{
			name: "scan error stops iteration",
			replies: []scanReply{
				{keys: []string{"dev:1"}, cursor: 5},
				{err: errScan},
			},
			wantBatches: [][]string{{"dev:1"}},
			wantCalls:   []uint64{0, 5},
			wantErr:     errScan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &scriptedStore{replies: tt.replies}
			it := newKeyIterator(store, "dev:", 10)

			var batches [][]string
			for it.Next(context.Background()) {
				batches = append(batches, it.Batch())
			}

			assert.Equal(t, tt.wantBatches, batches)
			assert.Equal(t, tt.wantCalls, store.calls)
			assert.ErrorIs(t, it.Err(), tt.wantErr)
			assert.False(t, it.Next(context.Background()), "iterator must stay exhausted")
		})
	}
}

func TestKeyIterator_MatchesPrefix(t *testing.T) {
	store := newFakeStore()
	store.add(0, "dev:1", "dev:2", "other:1")

	it := newKeyIterator(store, "dev:", 100)
	require.True(t, it.Next(context.Background()))
	assert.Equal(t, []string{"dev:1", "dev:2"}, it.Batch())
}

// Deleting every batch must always drive the iterator to completion, whatever
// the keyspace size and batch size.
func TestKeyIterator_TerminatesWhenBatchesAreDeleted(t *testing.T) {
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test input

	for i := 0; i < 50; i++ {
		size := rng.Intn(300)
		count := int64(rng.Intn(40) + 1)

		store := newFakeStore()
		for k := 0; k < size; k++ {
			store.add(0, fmt.Sprintf("dev:%04d", k))
		}

		store.add(0, "keep:1")

		it := newKeyIterator(store, "dev:", count)

		var deleted int

		for it.Next(context.Background()) {
			if len(it.Batch()) == 0 {
				continue
			}

			n, err := store.Del(context.Background(), it.Batch()...)
			require.NoError(t, err)

			deleted += int(n)

			require.LessOrEqual(t, it.Scans(), size+2, "size=%d count=%d", size, count)
		}

		require.NoError(t, it.Err())
		assert.Equal(t, size, deleted, "size=%d count=%d", size, count)
		assert.Equal(t, []string{"keep:1"}, store.keys(0))
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		prefix   string
		expected string
	}{
		{prefix: "dev:", expected: "dev:*"},
		{prefix: "dev*", expected: `dev\**`},
		{prefix: "a?b", expected: `a\?b*`},
		{prefix: "[x]", expected: `\[x\]*`},
		{prefix: `c:\`, expected: `c:\\*`},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchPattern(tt.prefix))
			assert.Equal(t, tt.prefix, unescapeGlob(tt.expected[:len(tt.expected)-1]))
		})
	}

	store := &scriptedStore{}
	it := newKeyIterator(store, "dev*", 10)
	assert.False(t, it.Next(context.Background()))
	assert.Equal(t, []string{`dev\**`}, store.matches)
}
