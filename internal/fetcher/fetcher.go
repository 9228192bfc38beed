// Package fetcher implements the SSRF-safe outbound document fetch used by
// the get_library_docs and read_page tools. Every hop of a redirect chain is
// re-validated against the allowlist and private-IP rules before it is
// followed — the fetcher never trusts a Location header on its own.
package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"procontext/internal/allowlist"
	"procontext/internal/domainutil"
	"procontext/internal/perr"
)

const (
	userAgent    = "procontext/1.0 (+https://github.com/pro-context/procontext)"
	maxRedirect  = 3
	fetchTimeout = 30 * time.Second
)

// Fetcher performs allowlist- and private-IP-checked HTTP GETs with manual
// redirect handling. The zero value is not usable; construct with New.
type Fetcher struct {
	client *http.Client
	// checkDomain mirrors cfg.Fetcher.SSRFDomainCheck: when false, the
	// allowlist membership check is skipped on every hop while the
	// private-IP check (never configurable) still applies.
	checkDomain bool
}

// New wraps an already-built shared HTTP client (see BuildHTTPClient).
// checkDomain mirrors cfg.Fetcher.SSRFDomainCheck.
func New(client *http.Client, checkDomain bool) *Fetcher {
	return &Fetcher{client: client, checkDomain: checkDomain}
}

// BuildHTTPClient constructs the shared client used by the whole process:
// connection pooling tuned the way the teacher proxy tunes its transport,
// no automatic redirect following (each Fetch call drives its own loop),
// and no client-level timeout so each Fetch call supplies its own total
// deadline covering every hop.
func BuildHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Fetch performs a single logical GET against rawURL, following redirects
// manually (max 3 hops) and re-validating every hop against allow. The
// allowlist is passed by value on every call; Fetch never reads process
// state itself. The whole call — every hop included — carries a single
// 30-second deadline, not 30 seconds per hop.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, allow allowlist.Allowlist) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	current := rawURL

	if !domainutil.IsURLAllowed(current, allow, true, f.checkDomain) {
		return "", perr.New(perr.CodeURLNotAllowed, "url is not allowed by the allowlist or private-ip rules")
	}

	for hops := 0; ; {
		body, status, location, err := f.attempt(ctx, current)
		if err != nil {
			return "", perr.Wrap(perr.CodePageFetchFailed, err, "fetch failed")
		}

		switch {
		case status >= 300 && status < 400 && location != "":
			resolved, err := resolveLocation(current, location)
			if err != nil {
				return "", perr.Wrap(perr.CodePageFetchFailed, err, "invalid redirect location")
			}
			if !domainutil.IsURLAllowed(resolved, allow, true, f.checkDomain) {
				return "", perr.New(perr.CodeURLNotAllowed, "redirect target is not allowed")
			}
			if hops >= maxRedirect {
				return "", perr.New(perr.CodeTooManyRedirects, "exceeded maximum redirect hops")
			}
			hops++
			current = resolved
			continue

		case status == http.StatusNotFound:
			return "", perr.New(perr.CodePageNotFound, "upstream returned 404")

		case status >= 400:
			return "", perr.New(perr.CodePageFetchFailed, "upstream returned an error status")

		default:
			return body, nil
		}
	}
}

// attempt issues one GET and returns (body, status, locationHeader, err).
// err is only set for transport-level failures (DNS, connect, read, TLS).
// ctx already carries Fetch's single total deadline.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (string, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return "", resp.StatusCode, resp.Header.Get("Location"), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, "", err
	}
	return string(body), resp.StatusCode, "", nil
}

func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(locURL).String(), nil
}
