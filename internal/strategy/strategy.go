// Package strategy implements the two upload strategies under comparison:
// Proxy, where bytes go through the application server, and ValetKey, where
// the client asks for a delegated URL and writes to storage directly.
package strategy

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"valetbench/internal/runner"
)

// SessionCookie carries the credential on every backend call.
const SessionCookie = "JSESSIONID"

// DefaultTimeout is the per-call ceiling for transfers.
const DefaultTimeout = 30 * time.Minute

// ErrNoUploadURL is returned when the backend answers without a usable URL.
var ErrNoUploadURL = errors.New("no upload url in response")

// StatusError is an unexpected HTTP status from a backend or storage call.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Body)
}

// NewHTTPClient returns a client tuned for many concurrent uploads.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 200
	t.MaxConnsPerHost = 200
	t.MaxIdleConnsPerHost = 200
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t,
	}
}

func sessionCookie(cred runner.Credential) *http.Cookie {
	return &http.Cookie{Name: SessionCookie, Value: string(cred)}
}

// failed builds a failed outcome, keeping the status code of a StatusError.
func failed(start time.Time, err error) runner.Outcome {
	o := runner.Outcome{Err: err}
	if !start.IsZero() {
		o.Elapsed = time.Since(start)
	}
	var se *StatusError
	if errors.As(err, &se) {
		o.StatusCode = se.Code
	}
	return o
}

// readSnippet reads at most 512 bytes of body for error messages.
func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

// flexFloat decodes a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// parseServerMetrics extracts the metrics the proxy endpoint reports.
// Missing or malformed fields are left nil.
func parseServerMetrics(body []byte) *runner.ServerMetrics {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	field := func(key string) *float64 {
		b, ok := raw[key]
		if !ok {
			return nil
		}
		var f flexFloat
		if err := json.Unmarshal(b, &f); err != nil {
			return nil
		}
		v := float64(f)
		return &v
	}
	m := &runner.ServerMetrics{
		TimeSec:    field("serverTime_s"),
		CPUPercent: field("serverCPU_pct"),
		MemoryMB:   field("serverMemory_MB"),
	}
	if m.Empty() {
		return nil
	}
	return m
}
