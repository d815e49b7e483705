package tool

import (
	"time"

	"go.uber.org/zap"
)

// NewDefaultRegistry registers the clock and web-search tools.
func NewDefaultRegistry(searcher Searcher, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.Register(Spec{
		Name:        NameCurrentTime,
		Description: "Get the current date and time in a time zone.",
		Args:        ClockArgs{},
	}, NewClockExecutor(time.Now, DefaultTimezone)); err != nil {
		return nil, err
	}
	if err := r.Register(Spec{
		Name:        NameWebSearch,
		Description: "Search the web for up-to-date information such as news, weather or prices.",
		Args:        SearchArgs{},
		Search:      true,
	}, NewWebSearchExecutor(searcher, 0)); err != nil {
		return nil, err
	}
	return r, nil
}

// PromptHint is appended to the system prompt so the model knows which tools
// exist and how often to call them.
func PromptHint(includeSearch bool) string {
	hint := "[Tools] get_current_time: current date and time"
	if includeSearch {
		hint += "; web_search: search the web"
	}
	return hint + ".\n[Rules] Answer directly. Call each tool at most once and never repeat a call."
}
