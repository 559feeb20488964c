package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog/log"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/cxerr"
)

// WebSource fetches a set of page URLs, strips boilerplate with a reader
// view, and converts the remaining HTML to markdown for the web splitter.
// Stored provenance drives conditional requests (ETag / If-Modified-Since)
// and version bookkeeping.
type WebSource struct {
	URLs    []string
	Catalog *catalog.Store
	Client  *http.Client

	pages map[string][]byte // url -> markdown, filled by Acquire
}

func NewWebSource(urls []string, cat *catalog.Store) *WebSource {
	return &WebSource{
		URLs:    urls,
		Catalog: cat,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WebSource) Acquire(ctx context.Context, emit func(float64, string)) error {
	w.pages = make(map[string][]byte, len(w.URLs))
	for i, pageURL := range w.URLs {
		if err := ctx.Err(); err != nil {
			return cxerr.New(cxerr.KindCancelled, "ingest.web", err)
		}
		md, err := w.fetchPage(ctx, pageURL)
		if err != nil {
			// Malformed or unreachable pages are skipped with a warning and
			// counted later when Load returns no data.
			log.Warn().Err(err).Str("url", pageURL).Msg("skipping page")
			w.pages[pageURL] = nil
		} else {
			w.pages[pageURL] = md
		}
		emit(float64(i+1)/float64(len(w.URLs)), pageURL)
	}
	return nil
}

func (w *WebSource) Enumerate(ctx context.Context) ([]Item, error) {
	items := make([]Item, 0, len(w.URLs))
	for _, pageURL := range w.URLs {
		pageURL := pageURL
		items = append(items, Item{
			Ref:  pageURL,
			Kind: SourceWeb,
			Load: func(context.Context) ([]byte, error) {
				return w.pages[pageURL], nil
			},
		})
	}
	return items, nil
}

// fetchPage downloads one page. A 304 against stored provenance returns the
// empty body, which the pipeline treats as "unchanged, skip".
func (w *WebSource) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "contextd/1.0 (+context indexing)")

	var prov catalog.WebProvenance
	var hasProv bool
	if w.Catalog != nil {
		prov, hasProv, _ = w.Catalog.GetWebProvenance(ctx, pageURL)
		if hasProv {
			if prov.ETag != "" {
				req.Header.Set("If-None-Match", prov.ETag)
			}
			if prov.LastModifiedAt != nil {
				req.Header.Set("If-Modified-Since", prov.LastModifiedAt.UTC().Format(http.TimeFormat))
			}
		}
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		log.Debug().Str("url", pageURL).Msg("not modified since last index")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	md, err := ExtractMarkdown(pageURL, body)
	if err != nil {
		return nil, err
	}

	if w.Catalog != nil {
		p := catalog.WebProvenance{
			URL:         pageURL,
			Domain:      domainOf(pageURL),
			ContentHash: ContentHash(md),
			ETag:        resp.Header.Get("ETag"),
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				p.LastModifiedAt = &t
			}
		}
		if _, err := w.Catalog.UpsertWebProvenance(ctx, p); err != nil {
			log.Warn().Err(err).Str("url", pageURL).Msg("provenance upsert failed")
		}
	}
	return md, nil
}

// ExtractMarkdown strips page boilerplate with the reader view and converts
// the main content to markdown.
func ExtractMarkdown(pageURL string, html []byte) ([]byte, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	article, err := readability.FromReader(strings.NewReader(string(html)), parsed)
	if err != nil {
		return nil, fmt.Errorf("readability %s: %w", pageURL, err)
	}
	content := article.Content
	if strings.TrimSpace(content) == "" {
		content = string(html)
	}
	md, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("html to markdown %s: %w", pageURL, err)
	}
	if article.Title != "" && !strings.HasPrefix(md, "#") {
		md = "# " + article.Title + "\n\n" + md
	}
	return []byte(md), nil
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
