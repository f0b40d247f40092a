package cache

import (
	"context"
	"sort"
	"strings"
)

// fakeStore is an in-memory keyStore whose cursors resume after the last
// returned key, so keys deleted between scans never shift later pages.
type fakeStore struct {
	dbs       map[int]map[string]struct{}
	selected  int
	cursors   map[uint64]string
	next      uint64
	pingErr   error
	selectErr map[int]error
	scanErr   map[string]error
	delErr    map[string]error
	scanCalls int
	delCalls  int
	closed    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		dbs:       make(map[int]map[string]struct{}),
		cursors:   make(map[uint64]string),
		selectErr: make(map[int]error),
		scanErr:   make(map[string]error),
		delErr:    make(map[string]error),
	}
}

func (f *fakeStore) add(db int, keys ...string) {
	if f.dbs[db] == nil {
		f.dbs[db] = make(map[string]struct{})
	}

	for _, k := range keys {
		f.dbs[db][k] = struct{}{}
	}
}

func (f *fakeStore) keys(db int) []string {
	out := make([]string, 0, len(f.dbs[db]))
	for k := range f.dbs[db] {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

func (f *fakeStore) Ping(_ context.Context) error {
	return f.pingErr
}

func (f *fakeStore) Select(_ context.Context, index int) error {
	if err := f.selectErr[index]; err != nil {
		return err
	}

	f.selected = index

	return nil
}

func (f *fakeStore) Scan(_ context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	f.scanCalls++

	if err := f.scanErr[match]; err != nil {
		return nil, 0, err
	}

	prefix := unescapeGlob(strings.TrimSuffix(match, "*"))
	after := ""

	if cursor != 0 {
		after = f.cursors[cursor]
	}

	var (
		batch     []string
		remaining bool
	)

	for _, k := range f.keys(f.selected) {
		if !strings.HasPrefix(k, prefix) || (cursor != 0 && k <= after) {
			continue
		}

		if int64(len(batch)) == count {
			remaining = true

			break
		}

		batch = append(batch, k)
	}

	if !remaining {
		return batch, 0, nil
	}

	f.next++
	f.cursors[f.next] = batch[len(batch)-1]

	return batch, f.next, nil
}

// unescapeGlob undoes MatchPattern's escaping of a literal prefix
func unescapeGlob(pattern string) string {
	var sb strings.Builder

	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			i++
		}

		sb.WriteByte(pattern[i])
	}

	return sb.String()
}

func (f *fakeStore) Del(_ context.Context, keys ...string) (int64, error) {
	f.delCalls++

	for prefix, err := range f.delErr {
		if len(keys) > 0 && strings.HasPrefix(keys[0], prefix) {
			return 0, err
		}
	}

	var n int64

	for _, k := range keys {
		if _, ok := f.dbs[f.selected][k]; ok {
			delete(f.dbs[f.selected], k)
			n++
		}
	}

	return n, nil
}

func (f *fakeStore) Close() error {
	f.closed = true

	return nil
}

// scriptedStore replays fixed SCAN replies in order
type scriptedStore struct {
	fakeStore

	replies []scanReply
	calls   []uint64
	matches []string
}

type scanReply struct {
	keys   []string
	cursor uint64
	err    error
}

func (s *scriptedStore) Scan(_ context.Context, cursor uint64, match string, _ int64) ([]string, uint64, error) {
	s.calls = append(s.calls, cursor)
	s.matches = append(s.matches, match)

	if len(s.replies) == 0 {
		return nil, 0, nil
	}

	r := s.replies[0]
	s.replies = s.replies[1:]

	return r.keys, r.cursor, r.err
}

var (
	_ keyStore = (*fakeStore)(nil)
	_ keyStore = (*scriptedStore)(nil)
)
