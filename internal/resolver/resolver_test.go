package resolver

import (
	"testing"

	"procontext/internal/logger"
	"procontext/internal/registry"
)

func sampleIndexes() *registry.Indexes {
	entries := []registry.Entry{
		{
			ID:         "langchain",
			Name:       "LangChain",
			LLMsTxtURL: "https://docs.langchain.com/llms.txt",
			Packages:   registry.Packages{PyPI: []string{"langchain-openai"}},
		},
	}
	return registry.BuildIndexes(entries, logger.New("TEST", "error", "text"))
}

func TestResolveExactPackage(t *testing.T) {
	matches := Resolve("langchain-openai", sampleIndexes())
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	m := matches[0]
	if m.LibraryID != "langchain" || m.MatchedVia != ViaPackageName || m.Relevance != 1.0 {
		t.Errorf("unexpected match: %+v", m)
	}
}

func TestResolveFuzzyTypo(t *testing.T) {
	matches := Resolve("langchian", sampleIndexes())
	if len(matches) == 0 {
		t.Fatal("expected at least one fuzzy match")
	}
	found := false
	for _, m := range matches {
		if m.LibraryID == "langchain" && m.MatchedVia == ViaFuzzy && m.Relevance >= 0.5 && m.Relevance < 1.0 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a fuzzy match for langchain, got %+v", matches)
	}
}

func TestResolveSortedAndDeduped(t *testing.T) {
	matches := Resolve("langchain", sampleIndexes())
	seen := make(map[string]bool)
	for i, m := range matches {
		if seen[m.LibraryID] {
			t.Errorf("duplicate library_id %q in results", m.LibraryID)
		}
		seen[m.LibraryID] = true
		if i > 0 && matches[i-1].Relevance < m.Relevance {
			t.Errorf("results not sorted by descending relevance")
		}
	}
	if len(matches) > 10 {
		t.Errorf("expected at most 10 matches, got %d", len(matches))
	}
}
