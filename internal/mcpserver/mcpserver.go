// Package mcpserver registers procontext's three MCP tools
// (resolve_library, get_library_docs, read_page) and dispatches calls into
// the resolver, cache, fetcher, and appstate packages.
//
// Tool registration follows the option-builder pattern other MCP servers
// built on mark3labs/mcp-go use (mcp.NewTool(name, mcp.WithString(...),
// mcp.Required())) rather than hand-rolled JSON schema structs.
package mcpserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"procontext/internal/appstate"
	"procontext/internal/pagetext"
	"procontext/internal/perr"
	"procontext/internal/registry"
	"procontext/internal/resolver"
)

const (
	maxQueryChars = 500
	maxURLChars   = 2048
)

// Server wires the three MCP tools against a shared AppState.
type Server struct {
	state   *appstate.AppState
	version string
}

// New constructs a Server ready to register its tools with an
// *server.MCPServer via Register.
func New(state *appstate.AppState, version string) *Server {
	return &Server{state: state, version: version}
}

// Register adds all three tools to srv.
func (s *Server) Register(srv *server.MCPServer) {
	srv.AddTool(mcp.NewTool("resolve_library",
		mcp.WithDescription("Resolve a free-text library name or package name into one or more canonical library identifiers, ranked by relevance."),
		mcp.WithString("query", mcp.Description("Library or package name to resolve, e.g. \"langchain\" or \"langchain-openai\"."), mcp.Required()),
	), s.handleResolveLibrary)

	srv.AddTool(mcp.NewTool("get_library_docs",
		mcp.WithDescription("Fetch the table-of-contents documentation (llms.txt) for a resolved library id, serving from cache when fresh."),
		mcp.WithString("library_id", mcp.Description("Canonical library id returned by resolve_library."), mcp.Required()),
	), s.handleGetLibraryDocs)

	srv.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Fetch a documentation page by URL and return a line-numbered window of its content plus a heading map, serving from cache when fresh."),
		mcp.WithString("url", mcp.Description("Absolute http(s) URL of the documentation page to read."), mcp.Required()),
		mcp.WithNumber("offset", mcp.Description("1-based line number to start the returned window at. Defaults to 1.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of lines to return. Defaults to 200.")),
	), s.handleReadPage)
}

// --- resolve_library ---

func (s *Server) handleResolveLibrary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]interface{})

	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		s.countResolve("error")
		return errorResult(perr.New(perr.CodeInvalidInput, "query must not be empty")), nil
	}
	if len([]rune(query)) > maxQueryChars {
		s.countResolve("error")
		return errorResult(perr.New(perr.CodeInvalidInput, "query must be at most 500 characters")), nil
	}

	matches := resolver.Resolve(query, s.state.Indexes)
	if len(matches) == 0 {
		s.countResolve("no_match")
	} else {
		s.countResolve("matched")
	}
	return jsonResult(map[string]any{"matches": toMatchDTOs(matches)})
}

func (s *Server) countResolve(outcome string) {
	if s.state.Metrics != nil {
		s.state.Metrics.ResolveCalls.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) countCache(table string, hit bool) {
	if s.state.Metrics == nil {
		return
	}
	if hit {
		s.state.Metrics.CacheHits.WithLabelValues(table).Inc()
	} else {
		s.state.Metrics.CacheMisses.WithLabelValues(table).Inc()
	}
}

// fetchAndTime wraps a fetcher.Fetch call with fetch_calls_total and
// fetch_duration_seconds bookkeeping.
func (s *Server) fetchAndTime(ctx context.Context, url string) (string, error) {
	start := time.Now()
	allow := s.state.Snapshot()
	content, err := s.state.Fetcher.Fetch(ctx, url, allow)
	if s.state.Metrics != nil {
		s.state.Metrics.FetchDuration.Observe(time.Since(start).Seconds())
		code := "ok"
		if err != nil {
			code = "error"
			if pe, ok := err.(*perr.Error); ok {
				code = string(pe.Code)
			}
		}
		s.state.Metrics.FetchCalls.WithLabelValues(code).Inc()
	}
	return content, err
}

type libraryMatchDTO struct {
	LibraryID  string   `json:"library_id"`
	Name       string   `json:"name"`
	Languages  []string `json:"languages"`
	DocsURL    *string  `json:"docs_url,omitempty"`
	MatchedVia string   `json:"matched_via"`
	Relevance  float64  `json:"relevance"`
}

func toMatchDTOs(matches []resolver.LibraryMatch) []libraryMatchDTO {
	out := make([]libraryMatchDTO, 0, len(matches))
	for _, m := range matches {
		out = append(out, libraryMatchDTO{
			LibraryID:  m.LibraryID,
			Name:       m.Name,
			Languages:  m.Languages,
			DocsURL:    m.DocsURL,
			MatchedVia: m.MatchedVia,
			Relevance:  m.Relevance,
		})
	}
	return out
}

// --- get_library_docs ---

func (s *Server) handleGetLibraryDocs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]interface{})

	libraryID, _ := args["library_id"].(string)
	libraryID = strings.TrimSpace(libraryID)
	if !registry.ValidID(libraryID) {
		return errorResult(perr.New(perr.CodeInvalidInput, "library_id does not match the required id pattern")), nil
	}

	entry, ok := s.state.Indexes.ByID[libraryID]
	if !ok {
		return errorResult(perr.New(perr.CodeLibraryNotFound, "library_id not found in registry")), nil
	}

	s.state.Cache.CleanupIfDue(ctx, s.state.Config.Cache.CleanupIntervalHours)

	if cached, ok := s.state.Cache.GetToc(ctx, libraryID); ok {
		s.countCache("toc", true)
		return jsonResult(map[string]any{
			"library_id": libraryID,
			"name":       entry.Name,
			"content":    cached.Content,
			"cached":     true,
			"cached_at":  cached.FetchedAt.Format(time.RFC3339),
			"stale":      cached.Stale,
		})
	}
	s.countCache("toc", false)

	content, err := s.fetchAndTime(ctx, entry.LLMsTxtURL)
	if err != nil {
		if pe, ok := err.(*perr.Error); ok {
			return errorResult(pe), nil
		}
		return errorResult(perr.Wrap(perr.CodePageFetchFailed, err, "fetch failed")), nil
	}

	discovered := s.state.ExpandAllowlist(content, 1)
	s.state.Cache.SetToc(ctx, libraryID, entry.LLMsTxtURL, content, discovered, s.state.Config.Cache.TTLHours)

	return jsonResult(map[string]any{
		"library_id": libraryID,
		"name":       entry.Name,
		"content":    content,
		"cached":     false,
		"cached_at":  time.Now().UTC().Format(time.RFC3339),
		"stale":      false,
	})
}

// --- read_page ---

func (s *Server) handleReadPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]interface{})

	url, _ := args["url"].(string)
	url = strings.TrimSpace(url)
	if url == "" || len([]rune(url)) > maxURLChars || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return errorResult(perr.New(perr.CodeInvalidInput, "url must be an absolute http(s) url of at most 2048 characters")), nil
	}

	offset := intArg(args, "offset", 1)
	limit := intArg(args, "limit", 200)
	if offset < 1 {
		return errorResult(perr.New(perr.CodeInvalidInput, "offset must be >= 1")), nil
	}
	if limit < 1 {
		return errorResult(perr.New(perr.CodeInvalidInput, "limit must be >= 1")), nil
	}

	s.state.Cache.CleanupIfDue(ctx, s.state.Config.Cache.CleanupIntervalHours)

	urlHash := hashURL(url)

	var content, headings string
	var fetchedAt time.Time
	var cached, stale bool

	if entry, ok := s.state.Cache.GetPage(ctx, urlHash); ok {
		s.countCache("page", true)
		content, headings, fetchedAt, stale, cached = entry.Content, entry.Headings, entry.FetchedAt, entry.Stale, true
	} else {
		s.countCache("page", false)
		fetched, err := s.fetchAndTime(ctx, url)
		if err != nil {
			if pe, ok := err.(*perr.Error); ok {
				return errorResult(pe), nil
			}
			return errorResult(perr.Wrap(perr.CodePageFetchFailed, err, "fetch failed")), nil
		}
		content = fetched
		headings = pagetext.ExtractHeadings(content)
		fetchedAt = time.Now().UTC()

		discovered := s.state.ExpandAllowlist(content, 1)
		s.state.Cache.SetPage(ctx, url, urlHash, content, headings, discovered, s.state.Config.Cache.TTLHours)
	}

	lines := pagetext.Lines(content)
	window := pagetext.Window(lines, offset, limit)

	return jsonResult(map[string]any{
		"url":         url,
		"headings":    headings,
		"total_lines": len(lines),
		"offset":      offset,
		"limit":       limit,
		"content":     strings.Join(window, "\n"),
		"cached":      cached,
		"cached_at":   fetchedAt.Format(time.RFC3339),
		"stale":       stale,
	})
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func intArg(args map[string]interface{}, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

// --- result helpers ---

func jsonResult(v map[string]any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResult(perr.Wrap(perr.CodeInternalError, err, "failed to marshal tool result")), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// errEnvelope is the wire shape of a failed tool call's sole text content
// block: {"error":{"code","message","recoverable"}}.
type errEnvelope struct {
	Error struct {
		Code        perr.Code `json:"code"`
		Message     string    `json:"message"`
		Recoverable bool      `json:"recoverable"`
	} `json:"error"`
}

// errorResult builds the MCP error result exactly as the wire contract
// requires: a single text content block carrying the error envelope, with
// IsError set directly rather than relying on mcp-go's default
// "Error executing tool" wrapper text.
func errorResult(pe *perr.Error) *mcp.CallToolResult {
	var env errEnvelope
	env.Error.Code = pe.Code
	env.Error.Message = pe.Message
	env.Error.Recoverable = pe.Recoverable

	body, err := json.Marshal(env)
	if err != nil {
		body = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"failed to encode error envelope","recoverable":false}}`)
	}

	result := mcp.NewToolResultText(string(body))
	result.IsError = true
	return result
}
