package scraper

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"info-collecte/internal/logger"
)

// StaticSource submits the search form with plain HTTP requests. It does not
// run scripts, so it only works while the site keeps a server-side postback.
type StaticSource struct {
	opts Options
	log  *zap.SugaredLogger
}

// NewStaticSource creates a colly-backed source.
func NewStaticSource(opts Options, log *zap.SugaredLogger) *StaticSource {
	return &StaticSource{opts: opts.withDefaults(), log: logger.OrNop(log)}
}

func (s *StaticSource) Name() string {
	return string(ModeStatic)
}

func (s *StaticSource) Fetch(ctx context.Context, address string) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(s.opts.UserAgent),
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.opts.Timeout)

	form := make(map[string]string)
	postURL := s.opts.SiteURL
	var (
		body     string
		fetchErr error
	)

	c.OnHTML("form", func(e *colly.HTMLElement) {
		if e.Request.Method != http.MethodGet {
			return
		}
		if action := e.Attr("action"); action != "" {
			postURL = e.Request.AbsoluteURL(action)
		}
		e.ForEach(`input[type="hidden"]`, func(_ int, in *colly.HTMLElement) {
			if name := in.Attr("name"); name != "" {
				form[name] = in.Attr("value")
			}
		})
	})

	c.OnResponse(func(r *colly.Response) {
		if r.Request.Method == http.MethodPost {
			body = string(r.Body)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = errors.Wrapf(err, "request failed with status %d", status)
	})

	s.log.Debugw("loading search form", logger.FieldURL, s.opts.SiteURL)
	if err := c.Visit(s.opts.SiteURL); err != nil {
		return "", errors.Wrap(err, "loading search form")
	}
	if fetchErr != nil {
		return "", fetchErr
	}

	form[addressFieldName] = address
	form[searchButtonName] = "Rechercher"

	s.log.Debugw("submitting address search", logger.FieldURL, postURL, "fields", len(form))
	if err := c.Post(postURL, form); err != nil {
		return "", errors.Wrap(err, "submitting address search")
	}
	if fetchErr != nil {
		return "", fetchErr
	}
	if body == "" {
		return "", errors.New("empty search response")
	}
	return body, nil
}
