package links

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYouTubeDescription(t *testing.T) {
	t.Parallel()

	html := `var ytInitialPlayerResponse = {"videoDetails":{"shortDescription":"Line one\nLine \"two\"","isLive":false}};`

	assert.Equal(t, `Line one Line "two"`, youTubeDescription(html))
	assert.Empty(t, youTubeDescription("<html></html>"))
}

func TestIsYouTube(t *testing.T) {
	t.Parallel()

	assert.True(t, isYouTube("https://www.youtube.com/watch?v=abc"))
	assert.True(t, isYouTube("https://youtu.be/abc"))
	assert.False(t, isYouTube("https://notyoutube.com.example/watch"))
	assert.False(t, isYouTube("::bad"))
}

func TestDescribe_YouTubeFallsBackToMeta(t *testing.T) {
	t.Parallel()

	withPlayer := `<html><head><meta name="description" content="Meta text"></head>` +
		`<script>{"shortDescription":"Player text"}</script></html>`
	withoutPlayer := `<html><head><meta property="og:description" content="Open graph text"></head></html>`

	tests := []struct {
		name     string
		html     string
		youTube  bool
		expected string
	}{
		{name: "player description wins on youtube", html: withPlayer, youTube: true, expected: "Player text"},
		{name: "meta used off youtube", html: withPlayer, youTube: false, expected: "Meta text"},
		{name: "youtube without player json keeps meta", html: withoutPlayer, youTube: true, expected: "Open graph text"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			doc, err := goquery.NewDocumentFromReader(strings.NewReader(testCase.html))
			require.NoError(t, err)

			assert.Equal(t, testCase.expected, describe(doc, testCase.html, testCase.youTube))
		})
	}
}
