// Package allowlist holds the immutable set of base domains the fetcher may
// contact, plus the routine that grows it from newly discovered content.
package allowlist

import (
	"regexp"
	"sort"
	"strings"

	"procontext/internal/domainutil"
)

// Allowlist is an immutable set of base domains. The zero value is the empty
// allowlist.
type Allowlist struct {
	domains map[string]struct{}
}

// Contains reports whether baseDomain is a member.
func (a Allowlist) Contains(baseDomain string) bool {
	if a.domains == nil {
		return false
	}
	_, ok := a.domains[baseDomain]
	return ok
}

// Len reports the number of base domains in the set.
func (a Allowlist) Len() int { return len(a.domains) }

// Domains returns a sorted slice copy, for status reporting.
func (a Allowlist) Domains() []string {
	out := make([]string, 0, len(a.domains))
	for d := range a.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Union returns a new Allowlist containing a's domains plus extra. If extra
// contributes nothing new, the returned Allowlist shares a's underlying map
// and has the same Len() as a — callers that want identity-preservation
// should check that before publishing.
func (a Allowlist) Union(extra map[string]struct{}) Allowlist {
	grew := false
	for d := range extra {
		if !a.Contains(d) {
			grew = true
			break
		}
	}
	if !grew {
		return a
	}
	merged := make(map[string]struct{}, len(a.domains)+len(extra))
	for d := range a.domains {
		merged[d] = struct{}{}
	}
	for d := range extra {
		merged[d] = struct{}{}
	}
	return Allowlist{domains: merged}
}

// fromSlice builds an Allowlist from a slice of (already base-domain) strings.
func fromSlice(domains []string) Allowlist {
	m := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		m[d] = struct{}{}
	}
	return Allowlist{domains: m}
}

// Entry is the subset of registry.Entry that Build needs. Declared locally to
// avoid an import of internal/registry from this low-level package.
type Entry struct {
	DocsURL    *string
	LLMsTxtURL string
}

// Build extracts the base domain of every entry's docs_url and llms_txt_url,
// unions in the base domain of each extraDomains member, and returns the
// resulting Allowlist.
func Build(entries []Entry, extraDomains []string) Allowlist {
	domains := make(map[string]struct{})
	for _, e := range entries {
		if e.DocsURL != nil && *e.DocsURL != "" {
			domains[domainutil.BaseDomain(hostOf(*e.DocsURL))] = struct{}{}
		}
		if e.LLMsTxtURL != "" {
			domains[domainutil.BaseDomain(hostOf(e.LLMsTxtURL))] = struct{}{}
		}
	}
	for _, d := range extraDomains {
		domains[domainutil.BaseDomain(d)] = struct{}{}
	}
	out := make([]string, 0, len(domains))
	for d := range domains {
		out = append(out, d)
	}
	return fromSlice(out)
}

// urlHostPattern pulls the host out of an absolute http(s) URL without a full
// net/url parse — docs_url/llms_txt_url are validated upstream.
var urlHostPattern = regexp.MustCompile(`^https?://([^/]+)`)

func hostOf(rawURL string) string {
	m := urlHostPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return rawURL
	}
	host := m[1]
	if i := strings.LastIndexByte(host, '@'); i >= 0 {
		host = host[i+1:]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

// linkURLPattern matches a bare http(s) URL or one inside Markdown link
// syntax "[text](url)". Non-http(s) schemes are never matched.
var linkURLPattern = regexp.MustCompile(`https?://[^\s)\]]+`)

// ExtractBaseDomains finds every http(s) URL in content, bare or inside
// Markdown link syntax, and returns the set of their base domains.
func ExtractBaseDomains(content string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, raw := range linkURLPattern.FindAllString(content, -1) {
		out[domainutil.BaseDomain(hostOf(raw))] = struct{}{}
	}
	return out
}

// Publisher is the slice of AppState that ExpandFromContent needs: a
// snapshot of the current allowlist, a way to publish a grown one, and the
// configured recursion-depth ceiling for expansion.
type Publisher interface {
	Snapshot() Allowlist
	CompareAndSwap(old, new Allowlist) bool
	AllowlistDepth() int
}

// ExpandFromContent always returns the full set of base domains discovered
// in content (callers persist this for cache rehydration regardless of
// whether expansion happens). It atomically grows pub's published allowlist
// only when pub.AllowlistDepth() >= depthThreshold; if no genuinely new
// domain is discovered, the published allowlist is left reference-identical.
func ExpandFromContent(content string, pub Publisher, depthThreshold int) map[string]struct{} {
	discovered := ExtractBaseDomains(content)

	if pub.AllowlistDepth() < depthThreshold {
		return discovered
	}

	for {
		current := pub.Snapshot()
		grown := current.Union(discovered)
		if grown.Len() == current.Len() {
			// No new domains — nothing to publish.
			return discovered
		}
		if pub.CompareAndSwap(current, grown) {
			return discovered
		}
		// Another goroutine published first; retry against its result.
	}
}
