package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"stock-sentiment-predictor/internal/api"
	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/types"
)

const (
	defaultAPIBaseURL = "https://oauth.reddit.com"
	defaultTokenURL   = "https://www.reddit.com/api/v1/access_token"
	pageSize          = 100
)

type APIConfig struct {
	ClientID     string
	ClientSecret string
	// Username and Password switch to the password grant (script apps).
	Username  string
	Password  string
	UserAgent string
	BaseURL   string
	TokenURL  string
	RateLimit float64
	Timeout   time.Duration
	// Reddit serves at most ~1000 items per listing.
	MaxPages int
}

// APICollector reads subreddits through the Reddit OAuth API.
type APICollector struct {
	cfg    APIConfig
	filter interfaces.RelevanceFilter

	mu     sync.Mutex
	client *api.Client
}

var _ interfaces.Collector = (*APICollector)(nil)

func NewAPICollector(cfg APIConfig, filter interfaces.RelevanceFilter) (*APICollector, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required for the API collector")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAPIBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &APICollector{cfg: cfg, filter: filter}, nil
}

func (c *APICollector) Collect(ctx context.Context, req types.CollectRequest) ([]types.Post, error) {
	return collect(ctx, c, c.filter, req)
}

// apiClient authenticates on first use. The token source outlives the
// request context, so it is built on a background context.
func (c *APICollector) apiClient(ctx context.Context) (*api.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	base := &http.Client{Timeout: c.cfg.Timeout, Transport: userAgentTransport{ua: c.cfg.UserAgent}}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var hc *http.Client
	if c.cfg.Username != "" {
		conf := &oauth2.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: c.cfg.TokenURL, AuthStyle: oauth2.AuthStyleInHeader},
		}
		tok, err := conf.PasswordCredentialsToken(context.WithValue(ctx, oauth2.HTTPClient, base), c.cfg.Username, c.cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("reddit password grant: %w", err)
		}
		hc = conf.Client(tokenCtx, tok)
	} else {
		conf := &clientcredentials.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			TokenURL:     c.cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		hc = conf.Client(tokenCtx)
	}
	hc.Timeout = c.cfg.Timeout

	c.client = api.NewClient(
		api.WithHTTPClient(hc),
		api.WithBaseURL(strings.TrimRight(c.cfg.BaseURL, "/")),
		api.WithHeader("User-Agent", c.cfg.UserAgent),
		api.WithRateLimit(c.cfg.RateLimit, 1),
		api.WithLogging(true),
	)
	return c.client, nil
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type linkData struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
	Subreddit  string  `json:"subreddit"`
}

type commentData struct {
	ID         string          `json:"id"`
	Body       string          `json:"body"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"`
}

func (c *APICollector) listNew(ctx context.Context, venue string, scan *windowScan) error {
	client, err := c.apiClient(ctx)
	if err != nil {
		return err
	}

	after := ""
	for page := 0; page < c.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(pageSize))
		q.Set("raw_json", "1")
		if after != "" {
			q.Set("after", after)
		}
		resp, err := client.DoWithRetry(
			api.NewRequest(http.MethodGet, "/r/"+url.PathEscape(venue)+"/new?"+q.Encode()).WithContext(ctx),
			api.DefaultRetryConfig(),
		)
		if err != nil {
			return err
		}

		var l listing
		if err := resp.ParseJSON(&l); err != nil {
			return err
		}
		for _, child := range l.Data.Children {
			if child.Kind != "t3" {
				continue
			}
			var d linkData
			if err := json.Unmarshal(child.Data, &d); err != nil {
				continue
			}
			if !scan.offer(types.Post{
				ID:        d.ID,
				Venue:     venue,
				Title:     strings.TrimSpace(d.Title),
				Body:      d.Selftext,
				URL:       "https://www.reddit.com" + d.Permalink,
				CreatedAt: unixSeconds(d.CreatedUTC),
			}) {
				return nil
			}
		}
		if l.Data.After == "" {
			return nil
		}
		after = l.Data.After
	}
	return nil
}

func (c *APICollector) loadComments(ctx context.Context, p *types.Post, limit int) error {
	if limit <= 0 {
		return nil
	}
	client, err := c.apiClient(ctx)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("raw_json", "1")
	resp, err := client.DoWithRetry(
		api.NewRequest(http.MethodGet, "/comments/"+url.PathEscape(p.ID)+"?"+q.Encode()).WithContext(ctx),
		api.DefaultRetryConfig(),
	)
	if err != nil {
		return err
	}

	// [post listing, comment listing]
	var pair []listing
	if err := resp.ParseJSON(&pair); err != nil {
		return err
	}
	if len(pair) < 2 {
		return fmt.Errorf("unexpected comments payload for %s", p.ID)
	}
	p.Comments = flattenComments(pair[1], p.Comments[:0], limit)
	return nil
}

// flattenComments walks the tree depth-first; "more" stubs are not expanded.
func flattenComments(l listing, out []types.Comment, limit int) []types.Comment {
	for _, child := range l.Data.Children {
		if len(out) >= limit {
			return out
		}
		if child.Kind != "t1" {
			continue
		}
		var d commentData
		if err := json.Unmarshal(child.Data, &d); err != nil {
			continue
		}
		if body := strings.TrimSpace(d.Body); body != "" && body != "[deleted]" && body != "[removed]" {
			out = append(out, types.Comment{
				ID:        d.ID,
				Body:      strings.Join(strings.Fields(body), " "),
				CreatedAt: unixSeconds(d.CreatedUTC),
			})
		}
		if r := bytes.TrimSpace(d.Replies); len(r) > 0 && r[0] == '{' {
			var replies listing
			if err := json.Unmarshal(r, &replies); err == nil {
				out = flattenComments(replies, out, limit)
			}
		}
	}
	return out
}

func unixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// userAgentTransport sets the User-Agent Reddit requires on token requests too.
type userAgentTransport struct {
	ua   string
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", t.ua)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
