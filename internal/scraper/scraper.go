package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrFetchTimeout marks a render that never showed the expected elements.
var ErrFetchTimeout = errors.New("timed out waiting for info-collecte page")

const (
	// DefaultSiteURL is the address search page of the Ville de Québec.
	DefaultSiteURL = "https://www.ville.quebec.qc.ca/services/info-collecte/"

	// ASP.NET field names of the street search form.
	addressFieldName = "ctl00$ctl00$contenu$texte_page$ucInfoCollecteRechercheAdresse$RechercheAdresse$txtNomRue"
	searchButtonName = "ctl00$ctl00$contenu$texte_page$ucInfoCollecteRechercheAdresse$RechercheAdresse$BtnRue"

	defaultTimeout   = 25 * time.Second
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Source returns the rendered markup of the collection calendar for an
// address.
type Source interface {
	// Name identifies the fetch strategy in logs.
	Name() string

	// Fetch performs the address search and returns the result page markup.
	Fetch(ctx context.Context, address string) (string, error)
}

// Mode selects how the page is fetched.
type Mode string

const (
	ModeChrome Mode = "chrome"
	ModeStatic Mode = "static"
)

// Options configures a Source.
type Options struct {
	SiteURL    string
	Timeout    time.Duration
	ChromePath string
	UserAgent  string
}

func (o Options) withDefaults() Options {
	if o.SiteURL == "" {
		o.SiteURL = DefaultSiteURL
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	return o
}

// NewSource creates the Source for mode.
func NewSource(mode Mode, opts Options, log *zap.SugaredLogger) (Source, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeChrome, "":
		return NewChromeSource(opts, log), nil
	case ModeStatic:
		return NewStaticSource(opts, log), nil
	default:
		return nil, errors.Newf("unknown fetch mode %q", mode)
	}
}
