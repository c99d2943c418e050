package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/types"
)

const defaultWebBaseURL = "https://old.reddit.com"

type WebConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Pages per second across all requests of this collector.
	RateLimit float64
	MaxPages  int
}

// WebCollector scrapes the old.reddit.com HTML pages. It needs no
// credentials but sees only what the public site renders.
type WebCollector struct {
	cfg     WebConfig
	filter  interfaces.RelevanceFilter
	limiter *rate.Limiter
	domain  string
}

var _ interfaces.Collector = (*WebCollector)(nil)

func NewWebCollector(cfg WebConfig, filter interfaces.RelevanceFilter) (*WebCollector, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultWebBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid reddit base url %q", cfg.BaseURL)
	}

	w := &WebCollector{cfg: cfg, filter: filter, domain: u.Hostname()}
	if cfg.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return w, nil
}

func (w *WebCollector) Collect(ctx context.Context, req types.CollectRequest) ([]types.Post, error) {
	return collect(ctx, w, w.filter, req)
}

func (w *WebCollector) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.AllowedDomains(w.domain),
		colly.MaxDepth(1),
		colly.Async(false),
		colly.UserAgent(w.cfg.UserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(w.cfg.Timeout)
	c.OnRequest(func(r *colly.Request) {
		// over18 skips the interstitial on NSFW-flagged finance subs
		r.Headers.Set("Cookie", "over18=1")
	})
	return c
}

// visit fetches one page, honouring the shared rate limit.
func (w *WebCollector) visit(ctx context.Context, c *colly.Collector, pageURL string) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := c.Visit(pageURL); err != nil {
		return fmt.Errorf("visit %s: %w", pageURL, err)
	}
	c.Wait()
	return nil
}

func (w *WebCollector) listNew(ctx context.Context, venue string, scan *windowScan) error {
	next := w.cfg.BaseURL + "/r/" + url.PathEscape(venue) + "/new/"
	for page := 0; page < w.cfg.MaxPages && next != ""; page++ {
		c := w.newCollector(ctx)
		stop := false
		pageNext := ""

		c.OnHTML("div.thing[data-fullname]", func(e *colly.HTMLElement) {
			if stop || !strings.HasPrefix(e.Attr("data-fullname"), "t3_") {
				return
			}
			if e.Attr("data-promoted") == "true" || e.DOM.HasClass("stickied") {
				return
			}
			post, ok := w.postFromThing(venue, e.DOM)
			if !ok {
				return
			}
			if !scan.offer(post) {
				stop = true
			}
		})
		c.OnHTML("span.next-button a[href]", func(e *colly.HTMLElement) {
			pageNext = e.Request.AbsoluteURL(e.Attr("href"))
		})

		if err := w.visit(ctx, c, next); err != nil {
			return err
		}
		if stop {
			return nil
		}
		next = pageNext
	}
	return nil
}

func (w *WebCollector) postFromThing(venue string, s *goquery.Selection) (types.Post, bool) {
	ms, err := strconv.ParseInt(s.AttrOr("data-timestamp", ""), 10, 64)
	if err != nil {
		return types.Post{}, false
	}
	title := strings.TrimSpace(s.Find("a.title").First().Text())
	if title == "" {
		return types.Post{}, false
	}
	permalink := s.AttrOr("data-permalink", "")
	return types.Post{
		ID:        strings.TrimPrefix(s.AttrOr("data-fullname", ""), "t3_"),
		Venue:     venue,
		Title:     title,
		URL:       w.cfg.BaseURL + permalink,
		CreatedAt: time.UnixMilli(ms).UTC(),
	}, true
}

func (w *WebCollector) loadComments(ctx context.Context, p *types.Post, limit int) error {
	if p.URL == "" {
		return nil
	}
	c := w.newCollector(ctx)
	c.OnHTML("body", func(e *colly.HTMLElement) {
		body, comments := parseCommentsPage(e.DOM, limit)
		if p.Body == "" {
			p.Body = body
		}
		p.Comments = comments
	})
	return w.visit(ctx, c, p.URL)
}

// parseCommentsPage reads the self-text and up to limit comments, in page
// order (parents before their replies).
func parseCommentsPage(doc *goquery.Selection, limit int) (string, []types.Comment) {
	body := strings.TrimSpace(doc.Find("div.sitetable.linklisting div.thing div.expando div.md").First().Text())

	var comments []types.Comment
	if limit <= 0 {
		return body, nil
	}
	doc.Find("div.commentarea div.thing.comment").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		entry := s.ChildrenFiltered("div.entry")
		text := strings.Join(strings.Fields(entry.Find("div.md").First().Text()), " ")
		if text == "" || text == "[deleted]" || text == "[removed]" {
			return true
		}
		var created time.Time
		if ts, ok := entry.Find("time").First().Attr("datetime"); ok {
			created, _ = time.Parse(time.RFC3339, ts)
		}
		comments = append(comments, types.Comment{
			ID:        strings.TrimPrefix(s.AttrOr("data-fullname", ""), "t1_"),
			Body:      text,
			CreatedAt: created.UTC(),
		})
		return len(comments) < limit
	})
	return body, comments
}
