// Package registry loads the known-libraries manifest and builds the
// in-memory indexes the resolver matches against.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"procontext/internal/logger"
)

// idPattern is the required shape of a library id (also reused, through
// ValidID, to validate get_library_docs input in internal/mcpserver).
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidID reports whether id matches the required library-id shape.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// Packages holds a registry entry's known package-manager names.
type Packages struct {
	PyPI []string `json:"pypi"`
	NPM  []string `json:"npm"`
}

// Entry is a single row of known-libraries.json.
type Entry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DocsURL     *string  `json:"docs_url"`
	RepoURL     *string  `json:"repo_url"`
	Languages   []string `json:"languages"`
	Packages    Packages `json:"packages"`
	Aliases     []string `json:"aliases"`
	LLMsTxtURL  string   `json:"llms_txt_url"`
}

// FuzzyTerm is one (term, library id) pair in the fuzzy-matching corpus.
type FuzzyTerm struct {
	Term      string
	LibraryID string
}

// Indexes are the three derived mappings built in one pass over the
// manifest at startup. They are immutable once constructed.
type Indexes struct {
	ByPackage   map[string]string // lowercase package name -> library id
	ByID        map[string]*Entry // library id -> entry
	FuzzyCorpus []FuzzyTerm
}

// manifestDoc is the shape of known-libraries.json on the wire.
type manifestDoc struct {
	Entries []Entry `json:"entries"`
}

// Load fetches the manifest at manifestURL, parses and validates it, and
// derives the registry version from metadataURL (or a hash of the manifest
// body if metadataURL is empty or unreachable).
func Load(ctx context.Context, client *http.Client, manifestURL, metadataURL string, log *logger.Logger) ([]Entry, string, error) {
	body, err := fetchBody(ctx, client, manifestURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch registry manifest: %w", err)
	}

	var doc manifestDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", fmt.Errorf("parse registry manifest: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if !ValidID(e.ID) {
			log.Warn("registry_invalid_id", "dropping entry with invalid id", "id", e.ID)
			continue
		}
		if strings.TrimSpace(e.LLMsTxtURL) == "" {
			log.Warn("registry_missing_llms_txt_url", "dropping entry with empty llms_txt_url", "id", e.ID)
			continue
		}
		entries = append(entries, e)
	}

	version := manifestHash(body)
	if metadataURL != "" {
		if metaBody, err := fetchBody(ctx, client, metadataURL); err == nil {
			version = strings.TrimSpace(string(metaBody))
		} else {
			log.Warn("registry_metadata_unreachable", "falling back to manifest hash", "error", err.Error())
		}
	}

	return entries, version, nil
}

func fetchBody(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}

func manifestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// BuildIndexes constructs the three indexes of the data model in a single
// pass over entries. On a by_package collision, the first occurrence wins
// and a warning is logged — see DESIGN.md for why this preserves existing
// behavior rather than silently changing it.
func BuildIndexes(entries []Entry, log *logger.Logger) *Indexes {
	idx := &Indexes{
		ByPackage: make(map[string]string),
		ByID:      make(map[string]*Entry, len(entries)),
	}

	stored := make([]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		stored[i] = &e
	}

	for _, e := range stored {
		idx.ByID[e.ID] = e

		for _, pkg := range append(append([]string{}, e.Packages.PyPI...), e.Packages.NPM...) {
			key := strings.ToLower(strings.TrimSpace(pkg))
			if key == "" {
				continue
			}
			if existing, ok := idx.ByPackage[key]; ok && existing != e.ID {
				log.Warn("registry_package_collision", "package name claimed by multiple libraries; keeping first",
					"package", key, "kept", existing, "dropped", e.ID)
				continue
			}
			idx.ByPackage[key] = e.ID
		}

		idx.FuzzyCorpus = append(idx.FuzzyCorpus, FuzzyTerm{Term: strings.ToLower(strings.TrimSpace(e.ID)), LibraryID: e.ID})
		for _, alias := range e.Aliases {
			idx.FuzzyCorpus = append(idx.FuzzyCorpus, FuzzyTerm{Term: strings.ToLower(strings.TrimSpace(alias)), LibraryID: e.ID})
		}
		for _, pkg := range append(append([]string{}, e.Packages.PyPI...), e.Packages.NPM...) {
			idx.FuzzyCorpus = append(idx.FuzzyCorpus, FuzzyTerm{Term: strings.ToLower(strings.TrimSpace(pkg)), LibraryID: e.ID})
		}
	}

	return idx
}
