// File: internal/tracker/redact.go
package tracker

import (
	"strings"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
)

// DefaultRedactedHeaders are always removed from stored responses.
var DefaultRedactedHeaders = []string{"authorization", "cookie", "set-cookie"}

// Redactor drops sensitive response headers before they are stored.
type Redactor struct {
	names map[string]struct{}
}

// NewRedactor builds a redactor for the default headers plus extra.
func NewRedactor(extra ...string) *Redactor {
	r := &Redactor{names: make(map[string]struct{}, len(DefaultRedactedHeaders)+len(extra))}
	for _, n := range DefaultRedactedHeaders {
		r.names[n] = struct{}{}
	}
	for _, n := range extra {
		if n = strings.TrimSpace(n); n != "" {
			r.names[strings.ToLower(n)] = struct{}{}
		}
	}
	return r
}

// Sensitive reports whether a header name is redacted, ignoring case.
func (r *Redactor) Sensitive(name string) bool {
	_, ok := r.names[strings.ToLower(name)]
	return ok
}

// Filter returns a copy of headers without the sensitive ones, in order.
func (r *Redactor) Filter(headers []schemas.Header) []schemas.Header {
	if headers == nil {
		return nil
	}
	out := make([]schemas.Header, 0, len(headers))
	for _, h := range headers {
		if !r.Sensitive(h.Name) {
			out = append(out, h)
		}
	}
	return out
}
