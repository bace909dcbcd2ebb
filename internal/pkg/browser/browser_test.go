package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewHTTPClientAttachesCookieJarOutsideDocker(t *testing.T) {
	client := NewHTTPClient(5*time.Second, false)
	assert.NotNil(t, client.Jar)
}

func TestNewHTTPClientOmitsCookieJarInDocker(t *testing.T) {
	client := NewHTTPClient(5*time.Second, true)
	assert.Nil(t, client.Jar)
}

func TestExtractHrefsFromHTMLPrefersAnchorTags(t *testing.T) {
	html := `<html><body><a href="/a">a</a><a href="https://example.com/b">b</a></body></html>`
	hrefs := extractHrefsFromHTML(html)
	assert.ElementsMatch(t, []string{"/a", "https://example.com/b"}, hrefs)
}

func TestExtractHrefsFromHTMLFallsBackToXurlsWhenNoAnchors(t *testing.T) {
	html := `<html><body><embed src="viewer.pdf">Source: https://example.com/report.pdf</embed></body></html>`
	hrefs := extractHrefsFromHTML(html)
	assert.Contains(t, hrefs, "https://example.com/report.pdf")
}

func TestExtractHrefsFromHTMLReturnsEmptyWhenNothingLooksLikeAURL(t *testing.T) {
	html := `<html><body>no links here</body></html>`
	assert.Empty(t, extractHrefsFromHTML(html))
}
