package chat_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bezhuang/my-little-app/internal/domain/chat"
)

func TestMarkerCleaner_Clean(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no marker",
			in:   "Paris is the capital of France.",
			want: "Paris is the capital of France.",
		},
		{
			name: "marker at start",
			in:   "Therefore the answer is Paris, the capital and the largest city of France.",
			want: "Therefore the answer is Paris, the capital and the largest city of France.",
		},
		{
			name: "marker in front half",
			in:   "We know that therefore Paris is the capital, and it has been the capital for a very long time indeed.",
			want: "We know that therefore Paris is the capital, and it has been the capital for a very long time indeed.",
		},
		{
			name: "marker in back half",
			in:   interleaved,
			want: "Finally, the capital of France is Paris, a city on the Seine.",
		},
		{
			name: "short segment with colon",
			in:   "I compared the candidates one by one and checked each against the atlas. In summary: Paris is the capital of France.",
			want: "Paris is the capital of France.",
		},
		{
			name: "too short to trust",
			in:   "I compared the candidates one by one and checked each against the atlas. Therefore: yes.",
			want: "I compared the candidates one by one and checked each against the atlas. Therefore: yes.",
		},
		{
			name: "chinese markers",
			in:   "我先分析一下这个问题的各个方面，考虑了很多可能的情况和条件。所以答案是巴黎，它是法国的首都，也是最大的城市。",
			want: "所以答案是巴黎，它是法国的首都，也是最大的城市。",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	c := chat.MarkerCleaner{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.Clean(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, c.Clean(got), "cleaning must be idempotent")
		})
	}
}

func TestMarkerCleaner_CustomMarkers(t *testing.T) {
	t.Parallel()
	c := chat.MarkerCleaner{Markers: regexp.MustCompile(`(?i)answer:`)}
	in := "Lots of intermediate reasoning goes here before we conclude anything. Answer: Paris is the capital of France."
	assert.Equal(t, "Paris is the capital of France.", c.Clean(in))
}

func TestParseCleanupMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]chat.CleanupMode{
		"":        chat.CleanupAlways,
		"always":  chat.CleanupAlways,
		" Direct": chat.CleanupDirect,
		"OFF":     chat.CleanupOff,
	} {
		got, err := chat.ParseCleanupMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := chat.ParseCleanupMode("sometimes")
	assert.Error(t, err)
}
