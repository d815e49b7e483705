package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Bezhuang/my-little-app/internal/infra/search"
)

const (
	NameWebSearch = "web_search"

	maxSummaryRunes = 200
)

// SearchArgs are the arguments of web_search.
type SearchArgs struct {
	Query string `json:"query" required:"true" description:"Search keywords. Be specific and include dates or places when relevant." jsonschema:"search keywords"`
}

// Searcher is the outbound search provider.
type Searcher interface {
	Configured(ctx context.Context) bool
	Search(ctx context.Context, query string, count int) ([]search.Page, error)
}

// WebSearchExecutor runs a web search and formats the ranked results as
// numbered references the model can cite.
type WebSearchExecutor struct {
	searcher Searcher
	count    int
}

func NewWebSearchExecutor(searcher Searcher, count int) *WebSearchExecutor {
	if count <= 0 {
		count = search.DefaultCount
	}
	return &WebSearchExecutor{searcher: searcher, count: count}
}

func (e *WebSearchExecutor) Execute(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args SearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return Result{Text: "Please provide search keywords."}, nil
	}
	if e.searcher == nil || !e.searcher.Configured(ctx) {
		return Result{Text: "Web search is not configured. Please contact the administrator."}, nil
	}

	pages, err := e.searcher.Search(ctx, query, e.count)
	if err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{Text: fmt.Sprintf("No results found for %q.", query)}, nil
	}
	return formatPages(query, pages), nil
}

func formatPages(query string, pages []search.Page) Result {
	var (
		b         strings.Builder
		citations = make([]Citation, 0, len(pages))
	)
	fmt.Fprintf(&b, "[Web search results for %q]\n", query)
	for i, p := range pages {
		fmt.Fprintf(&b, "\n[Ref %d]\nTitle: %s\nURL: %s\n", i+1, p.Name, p.URL)
		if p.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", truncateRunes(p.Summary, maxSummaryRunes))
		}
		if p.SiteName != "" {
			fmt.Fprintf(&b, "Source: %s\n", p.SiteName)
		}
		if p.DateLastCrawled != "" {
			fmt.Fprintf(&b, "Date: %s\n", p.DateLastCrawled)
		}
		if p.URL != "" {
			citations = append(citations, Citation{URL: p.URL, Title: p.Name})
		}
	}
	return Result{Text: b.String(), Citations: citations}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
