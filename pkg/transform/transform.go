// Package transform derives serial-number corrections from broker client records
package transform

import (
	"errors"
	"strings"

	"github.com/ethpandaops/devsync/pkg/broker"
)

// DefaultMarker identifies clients connected from the device LAN side
const DefaultMarker = "_lan"

// ErrMarkerRequired is returned when the marker is empty
var ErrMarkerRequired = errors.New("client id marker is required")

// unsafeChars cannot appear in a serial number or address. They would end a
// quoted SQL literal or split the one-statement-per-line artifact.
const unsafeChars = "'\\\r\n"

// Config controls which client records become corrections
type Config struct {
	Marker string `yaml:"marker" default:"_lan"`
	// ExcludeIPContains skips records whose address contains any of these substrings
	ExcludeIPContains []string `yaml:"excludeIpContains,omitempty"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Marker == "" {
		return ErrMarkerRequired
	}

	return nil
}

// CorrectionParam is a serial number and the address its device reported from
type CorrectionParam struct {
	SerialNumber string `json:"serial_number"`
	IPAddress    string `json:"ip_address"`
}

// Transformer filters and maps client records. It holds no state between calls.
type Transformer struct {
	marker  string
	exclude []string
}

// NewTransformer creates a Transformer for the given config
func NewTransformer(cfg *Config) *Transformer {
	return &Transformer{
		marker:  cfg.Marker,
		exclude: cfg.ExcludeIPContains,
	}
}

// Transform keeps records whose client id contains the marker and that carry
// an address, stripping the marker to get the serial number. Records whose
// serial number or address is not Safe are dropped.
// Output order follows input order and duplicates are kept.
func (t *Transformer) Transform(records []broker.ClientRecord) []CorrectionParam {
	params := make([]CorrectionParam, 0, len(records))

	for _, record := range records {
		if !strings.Contains(record.ClientID, t.marker) {
			continue
		}

		if record.IPAddress == "" || t.excluded(record.IPAddress) {
			continue
		}

		sn := StripMarker(record.ClientID, t.marker)
		if sn == "" || !Safe(sn) || !Safe(record.IPAddress) {
			continue
		}

		params = append(params, CorrectionParam{
			SerialNumber: sn,
			IPAddress:    record.IPAddress,
		})
	}

	return params
}

// StripMarker removes marker from id until no occurrence is left, so that
// removals which splice a new occurrence together are also handled.
func StripMarker(id, marker string) string {
	if marker == "" {
		return id
	}

	for strings.Contains(id, marker) {
		id = strings.ReplaceAll(id, marker, "")
	}

	return id
}

// Safe reports whether value can be placed inside a quoted SQL literal on a single line
func Safe(value string) bool {
	return !strings.ContainsAny(value, unsafeChars)
}

func (t *Transformer) excluded(ip string) bool {
	for _, fragment := range t.exclude {
		if fragment != "" && strings.Contains(ip, fragment) {
			return true
		}
	}

	return false
}
