package chat

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// AnswerCleaner post-processes the final answer of a turn.
type AnswerCleaner interface {
	Clean(answer string) string
}

// CleanupMode controls when the cleaner runs on a final answer.
type CleanupMode string

const (
	// CleanupAlways cleans every final answer.
	CleanupAlways CleanupMode = "always"
	// CleanupDirect cleans only answers produced without a preceding tool round.
	CleanupDirect CleanupMode = "direct"
	CleanupOff    CleanupMode = "off"
)

func ParseCleanupMode(s string) (CleanupMode, error) {
	switch m := CleanupMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return CleanupAlways, nil
	case CleanupAlways, CleanupDirect, CleanupOff:
		return m, nil
	default:
		return "", fmt.Errorf("chat: unknown cleanup mode %q", s)
	}
}

func (m CleanupMode) applies(toolRounds int) bool {
	switch m {
	case CleanupOff:
		return false
	case CleanupDirect:
		return toolRounds == 0
	default:
		return true
	}
}

var defaultMarkers = regexp.MustCompile(`(?i)finally|in summary|therefore|最终|总结|所以`)

const (
	shortSegmentRunes = 50
	minAnswerRunes    = 20
)

// MarkerCleaner recovers the final answer from content that interleaves
// reasoning with the answer: when a concluding marker word appears in the
// back half of the text, everything before the last marker is dropped.
type MarkerCleaner struct {
	Markers *regexp.Regexp
}

func (c MarkerCleaner) Clean(answer string) string {
	markers := c.Markers
	if markers == nil {
		markers = defaultMarkers
	}
	matches := markers.FindAllStringIndex(answer, -1)
	if len(matches) == 0 {
		return answer
	}
	start := matches[len(matches)-1][0]
	pos := utf8.RuneCountInString(answer[:start])
	if pos == 0 || pos <= utf8.RuneCountInString(answer)/2 {
		return answer
	}

	segment := strings.TrimSpace(answer[start:])
	if utf8.RuneCountInString(segment) < shortSegmentRunes {
		// "In summary: the answer" keeps only what follows the colon.
		if i := strings.IndexAny(segment, ":："); i > 0 {
			_, size := utf8.DecodeRuneInString(segment[i:])
			if i+size < len(segment) {
				segment = strings.TrimSpace(segment[i+size:])
			}
		}
	}
	if utf8.RuneCountInString(segment) <= minAnswerRunes {
		return answer
	}
	return segment
}
