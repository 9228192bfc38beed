package fetcher

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"procontext/internal/allowlist"
	"procontext/internal/perr"
)

// dialerClient builds an http.Client whose Transport ignores the host in
// the request's dial address and always connects to target instead. This
// lets tests address an httptest server (which only ever listens on a
// loopback IP) through an allowlisted, non-IP hostname — the private-IP
// check is always on (§4.1) and would otherwise reject every httptest URL
// before the request is ever issued.
func dialerClient(target string) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, target)
		},
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// allowlistFor builds an Allowlist containing the base domain of each
// friendly (non-IP) hostname.
func allowlistFor(hosts ...string) allowlist.Allowlist {
	entries := make([]allowlist.Entry, 0, len(hosts))
	for _, h := range hosts {
		url := "http://" + h + "/llms.txt"
		entries = append(entries, allowlist.Entry{LLMsTxtURL: url})
	}
	return allowlist.Build(entries, nil)
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello docs"))
	}))
	defer srv.Close()

	f := New(dialerClient(srv.Listener.Addr().String()), true)
	allow := allowlistFor("docs.example.test")

	body, err := f.Fetch(context.Background(), "http://docs.example.test/llms.txt", allow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "hello docs" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestFetchURLNotAllowed(t *testing.T) {
	f := New(BuildHTTPClient(), true)
	_, err := f.Fetch(context.Background(), "http://not-allowed.example/", allowlist.Build(nil, nil))
	assertCode(t, err, perr.CodeURLNotAllowed)
}

func TestFetchURLNotAllowedSkipsDomainCheckButStillBlocksPrivateIP(t *testing.T) {
	// Mirrors the original system's test_ssrf_domain_check_false_bypasses_allowlist:
	// with the domain check disabled, an unlisted domain passes, but the
	// always-on private-IP check still rejects a loopback literal.
	f := New(BuildHTTPClient(), false)
	_, err := f.Fetch(context.Background(), "http://127.0.0.1/x", allowlist.Build(nil, nil))
	assertCode(t, err, perr.CodeURLNotAllowed)
}

func TestFetchAllowsUnlistedDomainWhenDomainCheckDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello docs"))
	}))
	defer srv.Close()

	f := New(dialerClient(srv.Listener.Addr().String()), false)
	// Empty allowlist: with the domain check off, this must still succeed.
	body, err := f.Fetch(context.Background(), "http://docs.example.test/llms.txt", allowlist.Build(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "hello docs" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestFetch404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(dialerClient(srv.Listener.Addr().String()), true)
	allow := allowlistFor("docs.example.test")
	_, err := f.Fetch(context.Background(), "http://docs.example.test/llms.txt", allow)
	assertCode(t, err, perr.CodePageNotFound)
}

func TestFetch500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(dialerClient(srv.Listener.Addr().String()), true)
	allow := allowlistFor("docs.example.test")
	_, err := f.Fetch(context.Background(), "http://docs.example.test/llms.txt", allow)
	assertCode(t, err, perr.CodePageFetchFailed)
}

func TestFetchFollowsAllowedRedirect(t *testing.T) {
	finalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("final content"))
	}))
	defer finalSrv.Close()

	redirectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://final.example.test/page", http.StatusFound)
	}))
	defer redirectSrv.Close()

	f := New(multiHostClient(map[string]string{
		"redirect.example.test": redirectSrv.Listener.Addr().String(),
		"final.example.test":    finalSrv.Listener.Addr().String(),
	}), true)
	allow := allowlistFor("redirect.example.test", "final.example.test")

	body, err := f.Fetch(context.Background(), "http://redirect.example.test/start", allow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "final content" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestFetchRedirectOutsideAllowlistFails(t *testing.T) {
	finalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("should not be reached"))
	}))
	defer finalSrv.Close()

	redirectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://final.example.test/page", http.StatusFound)
	}))
	defer redirectSrv.Close()

	f := New(multiHostClient(map[string]string{
		"redirect.example.test": redirectSrv.Listener.Addr().String(),
		"final.example.test":    finalSrv.Listener.Addr().String(),
	}), true)
	// Only the redirecting host is allowlisted — the target is not.
	allow := allowlistFor("redirect.example.test")

	_, err := f.Fetch(context.Background(), "http://redirect.example.test/start", allow)
	assertCode(t, err, perr.CodeURLNotAllowed)
}

func TestFetchTooManyRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://loop.example.test/loop", http.StatusFound)
	}))
	defer srv.Close()

	f := New(dialerClient(srv.Listener.Addr().String()), true)
	allow := allowlistFor("loop.example.test")

	_, err := f.Fetch(context.Background(), "http://loop.example.test/loop", allow)
	assertCode(t, err, perr.CodeTooManyRedirects)
}

// multiHostClient builds an http.Client that routes each friendly hostname
// in routes to its mapped backend address, so a redirect chain spanning
// two distinct httptest servers can be addressed entirely through
// allowlisted, non-IP hostnames.
func multiHostClient(routes map[string]string) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			target, ok := routes[host]
			if !ok {
				target = addr
			}
			var d net.Dialer
			return d.DialContext(ctx, network, target)
		},
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func assertCode(t *testing.T, err error, want perr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want)
	}
	pe, ok := err.(*perr.Error)
	if !ok {
		t.Fatalf("expected *perr.Error, got %T: %v", err, err)
	}
	if pe.Code != want {
		t.Errorf("expected code %s, got %s", want, pe.Code)
	}
}
