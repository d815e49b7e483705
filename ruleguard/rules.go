package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two guards returning the same value read better as one.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)
}

// printLogging flags stdout logging in library code. cmd/ owns its output writer.
func printLogging(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `fmt.Print($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`use the injected *zap.Logger instead of $$`)
}

// clientTimeouts flags HTTP clients that can hang a round forever.
func clientTimeouts(m dsl.Matcher) {
	m.Match(`http.DefaultClient`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report(`http.DefaultClient has no timeout; build an *http.Client with Timeout`)

	m.Match(`&http.Client{}`, `http.Client{}`).
		Report(`http.Client without Timeout`)
}

// sleepInRequestPath flags blocking sleeps that ignore cancellation.
func sleepInRequestPath(m dsl.Matcher) {
	m.Match(`time.Sleep($_)`).
		Where(m.File().PkgPath.Matches(`/internal/(api|domain|infra)`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`time.Sleep ignores ctx; select on time.After and ctx.Done() instead`)
}
