package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethpandaops/devsync/pkg/broker"
)

// FakeBroker serves /api/v4/clients from a fixed client list or status code.
type FakeBroker struct {
	*httptest.Server

	requests atomic.Int32
}

// NewFakeBroker starts a broker returning clients with status 200.
func NewFakeBroker(t *testing.T, clients []broker.ClientRecord) *FakeBroker {
	t.Helper()

	return newFakeBroker(t, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": clients,
		})
	})
}

// NewFailingBroker starts a broker answering every request with status and body.
func NewFailingBroker(t *testing.T, status int, body string) *FakeBroker {
	t.Helper()

	return newFakeBroker(t, func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func newFakeBroker(t *testing.T, respond func(w http.ResponseWriter)) *FakeBroker {
	t.Helper()

	fb := &FakeBroker{}
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.requests.Add(1)

		if r.URL.Path != "/api/v4/clients" {
			http.NotFound(w, r)

			return
		}

		respond(w)
	}))

	t.Cleanup(fb.Close)

	return fb
}

// Requests returns how many requests the broker has served.
func (f *FakeBroker) Requests() int {
	return int(f.requests.Load())
}
