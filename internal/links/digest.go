// Package links fetches reference pages and condenses them into short digests that can be
// handed to the script collaborator alongside the user's concept.
package links

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 4 << 20
	maxDescriptionRunes = 500
	userAgent           = "podcast-service/1.0 (+link-digest)"
)

// ErrFetch indicates that a link could not be retrieved.
var ErrFetch = errors.New("failed to fetch link")

var shortDescriptionPattern = regexp.MustCompile(`"shortDescription":"((?:[^"\\]|\\.)*)"`)

// Digest is what survives of a reference page after fetching it.
type Digest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Failed      bool   `json:"failed"`
	Error       string `json:"error,omitempty"`
}

// Digester fetches links and extracts their title and description.
type Digester struct {
	httpClient   *http.Client
	maxBodyBytes int64
}

// NewDigester creates a digester. A nil client gets a default with a short timeout.
func NewDigester(httpClient *http.Client) *Digester {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Digester{httpClient: httpClient, maxBodyBytes: defaultMaxBodyBytes}
}

// Digest fetches every non-blank link in order. A link that fails is reported in its
// entry and never stops the batch; only context cancellation ends it early.
func (d *Digester) Digest(ctx context.Context, links []string) []Digest {
	digests := make([]Digest, 0, len(links))

	for _, link := range links {
		link = strings.TrimSpace(link)
		if link == "" {
			continue
		}

		if ctx.Err() != nil {
			break
		}

		digest, err := d.digestOne(ctx, link)
		if err != nil {
			digest = Digest{URL: link, Title: "", Description: "", Failed: true, Error: err.Error()}
		}

		digests = append(digests, digest)
	}

	return digests
}

func (d *Digester) digestOne(ctx context.Context, link string) (Digest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, http.NoBody)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Digest{}, fmt.Errorf("%w: %s returned %s", ErrFetch, link, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodyBytes))
	if err != nil {
		return Digest{}, fmt.Errorf("%w: reading body: %w", ErrFetch, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Digest{}, fmt.Errorf("failed to parse HTML from %s: %w", link, err)
	}

	return Digest{
		URL:         link,
		Title:       collapseSpaces(doc.Find("title").First().Text()),
		Description: describe(doc, string(body), isYouTube(link)),
		Failed:      false,
		Error:       "",
	}, nil
}

// describe prefers the YouTube player description for video pages and falls back to the
// page's meta description.
func describe(doc *goquery.Document, html string, youTube bool) string {
	if youTube {
		if description := youTubeDescription(html); description != "" {
			return description
		}
	}

	return metaDescription(doc)
}

func metaDescription(doc *goquery.Document) string {
	for _, selector := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if trimmed := collapseSpaces(content); trimmed != "" {
				return truncateRunes(trimmed, maxDescriptionRunes)
			}
		}
	}

	return ""
}

// youTubeDescription pulls the video description out of the embedded player JSON.
func youTubeDescription(html string) string {
	match := shortDescriptionPattern.FindStringSubmatch(html)
	if match == nil {
		return ""
	}

	var description string

	err := json.Unmarshal([]byte(`"`+match[1]+`"`), &description)
	if err != nil {
		description = strings.ReplaceAll(match[1], `\n`, " ")
	}

	return truncateRunes(collapseSpaces(description), maxDescriptionRunes)
}

func isYouTube(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())

	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit])
}

// Format renders digests as plain reference notes.
func Format(digests []Digest) string {
	var builder strings.Builder

	for _, digest := range digests {
		fmt.Fprintf(&builder, "Link: %s\n", digest.URL)

		if digest.Failed {
			builder.WriteString("Content could not be loaded\n\n")

			continue
		}

		fmt.Fprintf(&builder, "Title: %s\nDescription: %s\n\n", digest.Title, digest.Description)
	}

	return strings.TrimRight(builder.String(), "\n")
}
