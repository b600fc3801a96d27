package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	appLog "calfilter/internal/log"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxBodyBytes = 16 << 20
)

// ErrBodyTooLarge is returned when the upstream calendar exceeds the
// configured size limit.
var ErrBodyTooLarge = errors.New("ics fetch: body exceeds size limit")

// Fetcher downloads calendar files and decodes them to UTF-8 text.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a Fetcher. Zero values select a 15s timeout and a
// 16 MiB body limit.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		maxBytes: maxBytes,
	}
}

// Fetch GETs url and returns the body as UTF-8 text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", errors.New("ics fetch: URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("ics fetch: build request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	lg := appLog.Ctx(ctx)
	lg.Debug("ics fetch start", "url", RedactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ics fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	// Read one byte past the limit to tell "exactly at limit" from "over".
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("ics fetch: read body: %w", err)
	}
	if int64(len(raw)) > f.maxBytes {
		return "", ErrBodyTooLarge
	}

	text, err := decodeBody(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}

	lg.Debug("ics fetch success", "url", RedactURL(url), "status", resp.StatusCode, "bytes", len(raw))
	return text, nil
}

// decodeBody converts raw to UTF-8. A charset declared in contentType wins;
// otherwise the payload is taken as UTF-8 (RFC5545's default), with a BOM
// allowed to switch to UTF-16.
func decodeBody(raw []byte, contentType string) (string, error) {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if name := params["charset"]; name != "" {
			enc, canonical := charset.Lookup(name)
			if enc == nil {
				return "", fmt.Errorf("ics fetch: unsupported charset %q", name)
			}
			out, err := enc.NewDecoder().Bytes(raw)
			if err != nil {
				return "", fmt.Errorf("ics fetch: decode %s: %w", canonical, err)
			}
			return string(out), nil
		}
	}

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", fmt.Errorf("ics fetch: decode utf-8: %w", err)
	}
	return string(out), nil
}

// RedactURL hides sensitive parts of an ICS URL for logging purposes.
func RedactURL(u string) string {
	// Very simple redaction to avoid logging query strings / paths in full.
	// Example:
	//   https://example.com/path/to/private.ics?token=abcd
	// -> https://example.com/...(redacted)
	const redactedSuffix = "/...(redacted)"

	// Find scheme separator.
	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	// Find next slash after host.
	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}

	return u[:j] + redactedSuffix
}
