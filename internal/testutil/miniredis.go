package testutil

import (
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewMiniredis creates an in-memory Redis for unit tests (no Docker needed).
// The server is automatically closed when the test completes.
func NewMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	return miniredis.RunT(t)
}

// NewMiniredisClient starts miniredis and returns it with a go-redis client
// bound to logical database db, for asserting on what devsync left behind.
// Both are closed when the test completes.
func NewMiniredisClient(t *testing.T, db int) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		DB:         db,
		MaxRetries: -1,
	})

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("closing client for db %d: %v", db, err)
		}
	})

	return mr, client
}

// SeedKeys stores each key with a placeholder value in logical database db.
func SeedKeys(t *testing.T, mr *miniredis.Miniredis, db int, keys ...string) {
	t.Helper()

	for _, key := range keys {
		if err := mr.DB(db).Set(key, "1"); err != nil {
			t.Fatalf("failed to seed key %q in db %d: %v", key, db, err)
		}
	}
}

// HostPort splits the miniredis address into host and numeric port.
func HostPort(t *testing.T, mr *miniredis.Miniredis) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatalf("failed to split miniredis address: %v", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("failed to parse miniredis port: %v", err)
	}

	return host, port
}
