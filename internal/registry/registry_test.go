package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"procontext/internal/logger"
)

func testLogger() *logger.Logger { return logger.New("REGISTRY", "error", "text") }

func TestValidID(t *testing.T) {
	valid := []string{"langchain", "lib-2", "a_b", "x"}
	invalid := []string{"", "Langchain", "-lib", "_lib", "UPPER"}
	for _, id := range valid {
		if !ValidID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
	for _, id := range invalid {
		if ValidID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestBuildIndexes(t *testing.T) {
	entries := []Entry{
		{
			ID:         "langchain",
			Name:       "LangChain",
			LLMsTxtURL: "https://docs.langchain.com/llms.txt",
			Packages:   Packages{PyPI: []string{"langchain-openai"}},
			Aliases:    []string{"lc"},
		},
		{
			ID:         "pydantic",
			Name:       "Pydantic",
			LLMsTxtURL: "https://docs.pydantic.dev/llms.txt",
			Packages:   Packages{PyPI: []string{"pydantic"}},
		},
	}

	idx := BuildIndexes(entries, testLogger())

	if idx.ByPackage["langchain-openai"] != "langchain" {
		t.Errorf("expected by_package lookup to resolve to langchain")
	}
	if idx.ByID["pydantic"].Name != "Pydantic" {
		t.Errorf("expected by_id lookup to resolve entry")
	}

	foundAlias := false
	for _, term := range idx.FuzzyCorpus {
		if term.Term == "lc" && term.LibraryID == "langchain" {
			foundAlias = true
		}
	}
	if !foundAlias {
		t.Errorf("expected fuzzy corpus to include alias term")
	}
}

func TestBuildIndexesFirstWinsOnCollision(t *testing.T) {
	entries := []Entry{
		{ID: "lib-a", LLMsTxtURL: "https://a.example.com/llms.txt", Packages: Packages{PyPI: []string{"shared-pkg"}}},
		{ID: "lib-b", LLMsTxtURL: "https://b.example.com/llms.txt", Packages: Packages{PyPI: []string{"shared-pkg"}}},
	}

	idx := BuildIndexes(entries, testLogger())

	if idx.ByPackage["shared-pkg"] != "lib-a" {
		t.Errorf("expected first-wins on by_package collision, got %q", idx.ByPackage["shared-pkg"])
	}
}

func TestLoadDropsInvalidEntries(t *testing.T) {
	// Exercises the validation path BuildIndexes assumes Load already ran:
	// an entry with an invalid id or empty llms_txt_url never reaches BuildIndexes.
	manifest := `{"entries":[
		{"id":"Invalid-ID","name":"Bad","llms_txt_url":"https://example.com/llms.txt"},
		{"id":"no-url","name":"NoURL","llms_txt_url":""},
		{"id":"langchain","name":"LangChain","llms_txt_url":"https://docs.langchain.com/llms.txt"}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manifest))
	}))
	defer srv.Close()

	entries, _, err := Load(context.Background(), srv.Client(), srv.URL, "", testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "langchain" {
		t.Errorf("expected only the valid entry to survive, got %+v", entries)
	}
}
