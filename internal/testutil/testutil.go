// Package testutil provides test utilities for devsync:
//   - Miniredis helpers for cache tests (miniredis.go)
//   - A fake EMQX client-listing server (broker.go)
//
// None of the helpers need Docker or network access beyond loopback.
package testutil
