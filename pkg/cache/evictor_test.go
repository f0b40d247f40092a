package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethpandaops/devsync/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return logger
}

func testConfig(host string, port int, dbs []int, prefixes ...string) *Config {
	return &Config{
		Host:           host,
		Port:           port,
		DBList:         dbs,
		KeyPrefixList:  prefixes,
		Enabled:        true,
		ConnectTimeout: 2 * time.Second,
		BatchSize:      1000,
	}
}

// newFakeEvictor returns an evictor wired to store and a counter of dials
func newFakeEvictor(t *testing.T, cfg *Config, store keyStore) (*Evictor, *int) {
	t.Helper()

	e, err := NewEvictor(testLogger(), cfg)
	require.NoError(t, err)

	dials := 0
	e.dial = func() keyStore {
		dials++

		return store
	}

	return e, &dials
}

func TestEvictor_DeletesOnlyMatchingPrefix(t *testing.T) {
	mr := testutil.NewMiniredis(t)
	testutil.SeedKeys(t, mr, 0, "dev:1", "dev:2", "other:1")

	host, port := testutil.HostPort(t, mr)

	e, err := NewEvictor(testLogger(), testConfig(host, port, []int{0}, "dev:"))
	require.NoError(t, err)

	report, err := e.Evict(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.TotalDeleted())
	assert.Empty(t, report.Errors())
	assert.Equal(t, []string{"other:1"}, mr.DB(0).Keys())
}

func TestEvictor_MultipleDatabasesAndPrefixes(t *testing.T) {
	mr := testutil.NewMiniredis(t)
	testutil.SeedKeys(t, mr, 0, "dev:1", "sess:1", "keep:0")
	testutil.SeedKeys(t, mr, 2, "dev:2", "dev:3", "sess:2", "keep:2")
	testutil.SeedKeys(t, mr, 1, "dev:untouched")

	host, port := testutil.HostPort(t, mr)

	e, err := NewEvictor(testLogger(), testConfig(host, port, []int{0, 2}, "dev:", "", "sess:"))
	require.NoError(t, err)

	report, err := e.Evict(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Databases, 2)
	assert.Equal(t, 0, report.Databases[0].DB)
	assert.Equal(t, 2, report.Databases[1].DB)

	for _, db := range report.Databases {
		require.Len(t, db.Prefixes, 2)
		assert.Equal(t, "dev:", db.Prefixes[0].Prefix)
		assert.Equal(t, "sess:", db.Prefixes[1].Prefix)
	}

	assert.Equal(t, int64(5), report.TotalDeleted())
	assert.Equal(t, []string{"keep:0"}, mr.DB(0).Keys())
	assert.Equal(t, []string{"dev:untouched"}, mr.DB(1).Keys())
	assert.Equal(t, []string{"keep:2"}, mr.DB(2).Keys())
}

func TestEvictor_NothingToDo(t *testing.T) {
	tests := []struct {
		name     string
		dbs      []int
		prefixes []string
	}{
		{name: "no prefixes", dbs: []int{0}},
		{name: "only empty prefixes", dbs: []int{0}, prefixes: []string{"", ""}},
		{name: "no databases", prefixes: []string{"dev:"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.pingErr = errors.New("must not be reached")
			store.add(0, "dev:1")

			e, dials := newFakeEvictor(t, testConfig("127.0.0.1", 6379, tt.dbs, tt.prefixes...), store)

			report, err := e.Evict(context.Background())
			require.NoError(t, err)

			assert.Zero(t, report.TotalDeleted())
			assert.Empty(t, report.Databases)
			assert.Zero(t, *dials)
			assert.Equal(t, []string{"dev:1"}, store.keys(0))
		})
	}
}

func TestEvictor_Unreachable(t *testing.T) {
	mr := testutil.NewMiniredis(t)
	host, port := testutil.HostPort(t, mr)
	mr.Close()

	cfg := testConfig(host, port, []int{0}, "dev:")
	cfg.ConnectTimeout = 200 * time.Millisecond

	e, err := NewEvictor(testLogger(), cfg)
	require.NoError(t, err)

	report, err := e.Evict(context.Background())
	require.ErrorIs(t, err, ErrCacheConnection)
	assert.Nil(t, report)
}

func TestEvictor_Password(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "wrong password", password: "nope", wantErr: true},
		{name: "right password", password: "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := testutil.NewMiniredis(t)
			mr.RequireAuth("secret")
			testutil.SeedKeys(t, mr, 0, "dev:1")

			host, port := testutil.HostPort(t, mr)
			cfg := testConfig(host, port, []int{0}, "dev:")
			cfg.Password = tt.password

			e, err := NewEvictor(testLogger(), cfg)
			require.NoError(t, err)

			report, err := e.Evict(context.Background())
			if tt.wantErr {
				require.ErrorIs(t, err, ErrCacheConnection)
				assert.Equal(t, []string{"dev:1"}, mr.DB(0).Keys())

				return
			}

			require.NoError(t, err)
			assert.Equal(t, int64(1), report.TotalDeleted())
			assert.Empty(t, mr.DB(0).Keys())
		})
	}
}

func TestEvictor_PagesThroughLargeKeyspace(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 2500; i++ {
		store.add(0, fmt.Sprintf("dev:%05d", i))
	}

	store.add(0, "other:1")

	e, _ := newFakeEvictor(t, testConfig("127.0.0.1", 6379, []int{0}, "dev:"), store)

	report, err := e.Evict(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Databases, 1)
	require.Len(t, report.Databases[0].Prefixes, 1)

	p := report.Databases[0].Prefixes[0]
	assert.NoError(t, p.Err)
	assert.Equal(t, int64(2500), p.Deleted)
	assert.Equal(t, 3, p.Batches)
	assert.Equal(t, 4, p.Scans)
	assert.Equal(t, 3, store.delCalls)
	assert.Equal(t, []string{"other:1"}, store.keys(0))
	assert.True(t, store.closed)
}

func TestEvictor_PrefixFailuresAreIsolated(t *testing.T) {
	errScan := errors.New("scan exploded")
	errDel := errors.New("del exploded")

	store := newFakeStore()
	store.add(0, "a:1", "a:2", "b:1", "c:1", "d:1")
	store.scanErr["b:*"] = errScan
	store.delErr["c:"] = errDel

	e, _ := newFakeEvictor(t, testConfig("127.0.0.1", 6379, []int{0}, "a:", "b:", "c:", "d:"), store)

	report, err := e.Evict(context.Background())
	require.NoError(t, err)

	prefixes := report.Databases[0].Prefixes
	require.Len(t, prefixes, 4)

	assert.NoError(t, prefixes[0].Err)
	assert.Equal(t, int64(2), prefixes[0].Deleted)

	var scanErr *ScanError
	require.ErrorAs(t, prefixes[1].Err, &scanErr)
	assert.Equal(t, "b:", scanErr.Prefix)
	assert.ErrorIs(t, prefixes[1].Err, errScan)

	var delErr *DeleteError
	require.ErrorAs(t, prefixes[2].Err, &delErr)
	assert.Equal(t, 1, delErr.Keys)
	assert.ErrorIs(t, prefixes[2].Err, errDel)

	assert.NoError(t, prefixes[3].Err)
	assert.Equal(t, int64(1), prefixes[3].Deleted)

	assert.Len(t, report.Errors(), 2)
	assert.Equal(t, []string{"b:1", "c:1"}, store.keys(0))
}

func TestEvictor_SelectFailureSkipsDatabase(t *testing.T) {
	errSelect := errors.New("ERR DB index is out of range")

	store := newFakeStore()
	store.add(0, "dev:1")
	store.add(2, "dev:2")
	store.selectErr[1] = errSelect

	e, _ := newFakeEvictor(t, testConfig("127.0.0.1", 6379, []int{0, 1, 2}, "dev:"), store)

	report, err := e.Evict(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Databases, 3)

	var selErr *SelectError
	require.ErrorAs(t, report.Databases[1].Err, &selErr)
	assert.Equal(t, 1, selErr.DB)
	assert.Empty(t, report.Databases[1].Prefixes)

	assert.Equal(t, int64(2), report.TotalDeleted())
	assert.Empty(t, store.keys(0))
	assert.Empty(t, store.keys(2))
}

func TestEvictor_PrefixIsLiteral(t *testing.T) {
	mr := testutil.NewMiniredis(t)
	testutil.SeedKeys(t, mr, 0, "dev*:1", "dev*x", "devX:1", "dev?", "dev[1]:a", "dev1:a")

	host, port := testutil.HostPort(t, mr)

	e, err := NewEvictor(testLogger(), testConfig(host, port, []int{0}, "dev*", "dev[1]"))
	require.NoError(t, err)

	report, err := e.Evict(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.TotalDeleted())
	assert.Equal(t, []string{"dev1:a", "dev?", "devX:1"}, mr.DB(0).Keys())
}
