// Package capture scrapes a social-media post from a live page with headless
// Chromium, producing the RawPost the analysis pipeline consumes.
package capture

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"

	appLog "post2cal/internal/log"
	"post2cal/internal/model"
)

const (
	// DefaultTimeout bounds the entire capture operation.
	DefaultTimeout = 30 * time.Second

	// articleSelector is the post container on X/Twitter-style pages.
	articleSelector = "article"
)

// extractScript pulls the post text and the publish timestamp out of the
// first article on the page. The datetime attribute of the <time> element is
// ISO 8601 when present.
const extractScript = `(() => {
	const article = document.querySelector("article");
	if (!article) {
		return { text: "", postedAt: "" };
	}
	const textNode = article.querySelector('[data-testid="tweetText"]');
	const text = textNode ? textNode.textContent : article.innerText;
	const timeNode = article.querySelector("time");
	const postedAt = timeNode ? (timeNode.getAttribute("datetime") || "") : "";
	return { text: text || "", postedAt };
})()`

// Options defines parameters for a Chromium-based post capture.
type Options struct {
	// URL of the post page, e.g. "https://x.com/user/status/123".
	URL string

	// Timeout bounds the capture operation. If zero, DefaultTimeout is used.
	Timeout time.Duration
}

// CapturePost launches a headless Chromium instance via chromedp, navigates
// to opts.URL, waits for the post article to appear, and extracts the post
// text plus its publish timestamp.
//
// When the page does not expose a valid publish timestamp, the capture clock
// is used as a fallback so the downstream interval policy still has a
// posted-at value to work with.
func CapturePost(parentCtx context.Context, opts Options) (model.RawPost, error) {
	if opts.URL == "" {
		return model.RawPost{}, errors.New("capture: URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var payload struct {
		Text     string `json:"text"`
		PostedAt string `json:"postedAt"`
	}

	tasks := chromedp.Tasks{
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(articleSelector, chromedp.ByQuery),
		// Small extra delay so lazily-rendered post bodies settle.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(extractScript, &payload),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return model.RawPost{}, errors.Wrap(err, "capture: chromedp run failed")
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return model.RawPost{}, errors.New("capture: no post text found on page")
	}

	postedAt := payload.PostedAt
	if _, err := time.Parse(time.RFC3339, postedAt); err != nil {
		appLog.Info("post timestamp missing or invalid, using capture time", "url", opts.URL, "raw", postedAt)
		postedAt = time.Now().UTC().Format(time.RFC3339)
	}

	return model.RawPost{
		Text:     text,
		URL:      opts.URL,
		PostedAt: postedAt,
	}, nil
}
