package cache

import (
	"context"
	"strings"
)

// globEscaper makes every glob metacharacter of a prefix match literally
//
//nolint:gochecknoglobals // immutable replacer
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// KeyIterator walks the keys matching one prefix in the selected database,
// one SCAN batch at a time. It is finite and cannot be restarted.
//
// Iteration continues while the server cursor is non-zero or the last batch
// was non-empty. A non-empty batch returned with cursor 0 therefore triggers
// one more SCAN from the start, which is expected to come back empty once the
// caller has deleted the batch.
type KeyIterator struct {
	store  keyStore
	match  string
	count  int64
	cursor uint64
	batch  []string
	scans  int
	done   bool
	err    error
}

func newKeyIterator(store keyStore, prefix string, count int64) *KeyIterator {
	return &KeyIterator{
		store: store,
		match: MatchPattern(prefix),
		count: count,
	}
}

// MatchPattern returns the SCAN MATCH pattern for every key starting with the
// literal prefix
func MatchPattern(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}

// Next fetches the next batch. It returns false once the scan is complete or
// a SCAN call failed; check Err afterwards.
func (it *KeyIterator) Next(ctx context.Context) bool {
	if it.done || it.err != nil {
		return false
	}

	keys, cursor, err := it.store.Scan(ctx, it.cursor, it.match, it.count)
	if err != nil {
		it.err = err
		it.batch = nil

		return false
	}

	it.scans++
	it.cursor = cursor
	it.batch = keys

	if cursor == 0 && len(keys) == 0 {
		it.done = true

		return false
	}

	return true
}

// Batch returns the keys of the current batch. It may be empty.
func (it *KeyIterator) Batch() []string {
	return it.batch
}

// Cursor returns the cursor the next SCAN will start from
func (it *KeyIterator) Cursor() uint64 {
	return it.cursor
}

// Scans returns how many SCAN round trips have been made
func (it *KeyIterator) Scans() int {
	return it.scans
}

// Err returns the SCAN error that stopped iteration, if any
func (it *KeyIterator) Err() error {
	return it.err
}
