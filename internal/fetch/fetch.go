package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
)

// Preview is the readable extract of one cited page, shown next to search
// references so buyers can inspect a source without leaving the app.
type Preview struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Byline   string `json:"byline,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	Text     string `json:"text"`
	Image    string `json:"image,omitempty"`
	HTMLHash string `json:"htmlHash"`
	RenderMS int    `json:"renderMs"`
}

// Fetcher renders a page headlessly and extracts its readable content.
type Fetcher struct {
	Timeout  time.Duration
	MaxChars int
}

// Fetch retrieves and extracts one page. Render failures return an error;
// extraction failures return the raw-title preview with empty text.
func (f Fetcher) Fetch(ctx context.Context, rawURL string) (Preview, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Preview{}, errors.New("invalid url")
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t0 := time.Now()

	html, err := fetchHTML(ctx, rawURL)
	if err != nil {
		return Preview{}, err
	}
	sum := sha1.Sum([]byte(html))

	out := Preview{
		URL:      rawURL,
		HTMLHash: hex.EncodeToString(sum[:]),
		RenderMS: int(time.Since(t0) / time.Millisecond),
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(rawURL))
	if err != nil {
		return out, nil
	}
	text := article.TextContent
	if f.MaxChars > 0 && len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	out.Title = strings.TrimSpace(article.Title)
	out.Byline = strings.TrimSpace(article.Byline)
	out.Excerpt = strings.TrimSpace(article.Excerpt)
	out.Text = strings.TrimSpace(text)
	out.Image = article.Image
	return out, nil
}

func fetchHTML(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("BidwiseBot/1.0 (+contact@procurelab.io)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
