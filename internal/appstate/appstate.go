// Package appstate bundles the long-lived, shared state every MCP tool
// handler needs: the registry indexes, the cache, the fetcher, and the
// allowlist that grows as content is discovered.
package appstate

import (
	"net/http"
	"sync"
	"sync/atomic"

	"procontext/internal/allowlist"
	"procontext/internal/cache"
	"procontext/internal/config"
	"procontext/internal/fetcher"
	"procontext/internal/logger"
	"procontext/internal/metrics"
	"procontext/internal/registry"
)

// AppState is constructed once in cmd/procontext and shared by every tool
// handler goroutine. Everything but the allowlist is immutable after
// construction; the allowlist grows monotonically via atomic pointer swap.
type AppState struct {
	Config          *config.Config
	Indexes         *registry.Indexes
	RegistryVersion string
	HTTPClient      *http.Client
	Cache           *cache.Cache
	Fetcher         *fetcher.Fetcher
	Log             *logger.Logger
	Metrics         *metrics.Metrics

	allowlist atomic.Pointer[allowlist.Allowlist]
	// casMu serializes CompareAndSwap callers. allowlist.Publisher's
	// CompareAndSwap takes Allowlist by value, so two calls racing on a
	// logically-equal "old" never share a pointer identity for the atomic
	// primitive to key off; the mutex gives the same effective serialization
	// without requiring Publisher's interface to expose a pointer type.
	casMu sync.Mutex
}

// New constructs an AppState with the given initial allowlist already
// published.
func New(cfg *config.Config, idx *registry.Indexes, registryVersion string, client *http.Client, c *cache.Cache, f *fetcher.Fetcher, log *logger.Logger, initial allowlist.Allowlist, m *metrics.Metrics) *AppState {
	s := &AppState{
		Config:          cfg,
		Indexes:         idx,
		RegistryVersion: registryVersion,
		HTTPClient:      client,
		Cache:           c,
		Fetcher:         f,
		Log:             log,
		Metrics:         m,
	}
	s.allowlist.Store(&initial)
	return s
}

// Snapshot returns the currently published Allowlist. Satisfies
// allowlist.Publisher.
func (s *AppState) Snapshot() allowlist.Allowlist {
	return *s.allowlist.Load()
}

// CompareAndSwap publishes next in place of old, reporting whether the swap
// took effect. Satisfies allowlist.Publisher. old must equal the currently
// published allowlist (by domain-set content, not by address) or the swap is
// rejected so the caller can retry against the latest value.
func (s *AppState) CompareAndSwap(old, next allowlist.Allowlist) bool {
	s.casMu.Lock()
	defer s.casMu.Unlock()

	current := *s.allowlist.Load()
	if !sameDomains(current, old) {
		return false
	}
	s.allowlist.Store(&next)
	return true
}

// AllowlistDepth reports the configured recursion-depth ceiling for
// allowlist expansion. Satisfies allowlist.Publisher.
func (s *AppState) AllowlistDepth() int {
	return s.Config.Fetcher.AllowlistDepth
}

// ExpandAllowlist is the sole writer of the published allowlist: it
// delegates to allowlist.ExpandFromContent, which always returns the
// discovered domain set and only publishes a grown allowlist when
// AllowlistDepth() permits it.
func (s *AppState) ExpandAllowlist(content string, depthThreshold int) map[string]struct{} {
	discovered := allowlist.ExpandFromContent(content, s, depthThreshold)
	if s.Metrics != nil {
		s.Metrics.AllowlistSize.Set(float64(s.Snapshot().Len()))
	}
	return discovered
}

func sameDomains(a, b allowlist.Allowlist) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, d := range a.Domains() {
		if !b.Contains(d) {
			return false
		}
	}
	return true
}
