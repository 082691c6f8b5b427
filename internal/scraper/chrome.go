package scraper

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"info-collecte/internal/logger"
)

// Common Chrome/Chromium binary names.
var chromeBinaryNames = []string{
	"chromium",
	"chromium-browser",
	"google-chrome-stable",
	"google-chrome",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
}

// ChromeSource renders the page in headless Chrome, which runs the site's
// scripts and postbacks.
type ChromeSource struct {
	opts Options
	log  *zap.SugaredLogger
}

// NewChromeSource creates a chromedp-backed source.
func NewChromeSource(opts Options, log *zap.SugaredLogger) *ChromeSource {
	return &ChromeSource{opts: opts.withDefaults(), log: logger.OrNop(log)}
}

func (s *ChromeSource) Name() string {
	return string(ModeChrome)
}

func (s *ChromeSource) Fetch(ctx context.Context, address string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.opts.UserAgent),
	)
	if path := s.chromePath(); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			s.log.Debugw("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	defer browserCancel()

	timeoutCtx, cancel := context.WithTimeout(browserCtx, s.opts.Timeout)
	defer cancel()

	addressInput := fmt.Sprintf(`input[name="%s"]`, addressFieldName)
	searchButton := fmt.Sprintf(`input[name="%s"]`, searchButtonName)

	s.log.Debugw("rendering page", logger.FieldURL, s.opts.SiteURL, logger.FieldAddress, address)

	var html string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(s.opts.SiteURL),
		chromedp.WaitVisible(addressInput, chromedp.ByQuery),
		chromedp.Clear(addressInput, chromedp.ByQuery),
		chromedp.SendKeys(addressInput, address, chromedp.ByQuery),
		chromedp.Click(searchButton, chromedp.ByQuery),
		chromedp.WaitReady(tableSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || timeoutCtx.Err() != nil {
			return "", errors.Mark(errors.Wrap(err, "rendering info-collecte page"), ErrFetchTimeout)
		}
		return "", errors.Wrap(err, "rendering info-collecte page")
	}

	s.log.Debugw("page rendered", "size", len(html))
	return html, nil
}

func (s *ChromeSource) chromePath() string {
	if s.opts.ChromePath != "" {
		return s.opts.ChromePath
	}
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range chromeBinaryNames {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}
