package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"sibyl/internal/domain/models/chat"
	"sibyl/internal/service/chat/turn"
)

const (
	fetchTimeout     = 20 * time.Second
	fetchMaxBody     = 2 << 20 // 2 MiB of HTML is plenty for one page
	fetchMaxRedirect = 5
	fetchUserAgent   = "sibyl-bot/1.0"

	// Converted markdown is truncated to keep one page from eating the
	// whole context window.
	fetchMaxMarkdown = 32 * 1024
)

// Fetcher retrieves web pages with a shared rate limit across all turns.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher creates a page fetcher allowing rps requests per second.
func NewFetcher(rps float64) *Fetcher {
	if rps <= 0 {
		rps = 2
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= fetchMaxRedirect {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// Page is one fetched and converted web page.
type Page struct {
	FinalURL string
	Title    string
	Markdown string
}

// Fetch retrieves a URL and converts its HTML body to markdown.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	html := string(body)

	title := extractTitle(html)

	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		// Fall back to the raw text for non-HTML content.
		markdown = html
	}
	if len(markdown) > fetchMaxMarkdown {
		markdown = markdown[:fetchMaxMarkdown] + "\n\n[truncated]"
	}

	return &Page{
		FinalURL: resp.Request.URL.String(),
		Title:    title,
		Markdown: markdown,
	}, nil
}

func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// OpenURLTool fetches a web page and returns its content as markdown.
// The page is citeable, keyed by its final URL.
type OpenURLTool struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewOpenURLTool creates the URL fetch tool.
func NewOpenURLTool(fetcher *Fetcher, logger *slog.Logger) *OpenURLTool {
	return &OpenURLTool{fetcher: fetcher, logger: logger}
}

func (t *OpenURLTool) Definition() chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        "open_url",
		Description: "Fetch a web page and return its content as markdown.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The URL to fetch",
				},
			},
			"required": []any{"url"},
		},
	}
}

func (t *OpenURLTool) EmitStart(turnIndex int, tc *turn.Context) {
	t.logger.Debug("open_url starting", "turn_id", tc.TurnID, "turn_index", turnIndex)
}

func (t *OpenURLTool) Run(ctx context.Context, turnIndex int, tc *turn.Context, args map[string]any) (turn.ToolResponse, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return turn.ToolResponse{}, fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return turn.ToolResponse{}, fmt.Errorf("unsupported url scheme")
	}

	page, err := t.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return turn.ToolResponse{}, fmt.Errorf("open url: %w", err)
	}

	key := "url:" + page.FinalURL
	result := chat.CiteableResult{
		Type:      chat.ResultOpenURL,
		Title:     page.Title,
		URL:       page.FinalURL,
		Content:   page.Markdown,
		SourceKey: key,
	}
	tc.RegisterDocument(key, result.Ref())

	payload, err := chat.EncodeCiteableResults([]chat.CiteableResult{result})
	if err != nil {
		return turn.ToolResponse{}, fmt.Errorf("encode result: %w", err)
	}
	return turn.ToolResponse{Text: payload}, nil
}
