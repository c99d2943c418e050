package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thing(id, title string, ts time.Time, extra string) string {
	return fmt.Sprintf(`<div class="thing link %s" data-fullname="t3_%s" data-timestamp="%d" data-permalink="/r/stocks/comments/%s/slug/">
  <div class="entry"><p class="title"><a class="title" href="/r/stocks/comments/%s/slug/">%s</a></p></div>
</div>`, extra, id, ts.UnixMilli(), id, id, title)
}

const commentsPage = `<html><body>
<div class="sitetable linklisting">
  <div class="thing link" data-fullname="t3_a">
    <div class="entry"><div class="expando"><div class="usertext-body"><div class="md"><p>Deliveries beat estimates</p></div></div></div></div>
  </div>
</div>
<div class="commentarea">
  <div class="sitetable nestedlisting">
    <div class="thing comment" data-fullname="t1_c1">
      <div class="entry"><p class="tagline"><time datetime="2024-03-03T10:00:00+00:00">2d</time></p>
        <form><div class="usertext-body"><div class="md"><p>Strong   quarter</p></div></div></form></div>
      <div class="child">
        <div class="sitetable listing">
          <div class="thing comment" data-fullname="t1_c2">
            <div class="entry"><p class="tagline"><time datetime="2024-03-03T11:00:00+00:00">2d</time></p>
              <form><div class="usertext-body"><div class="md"><p>agreed</p></div></div></form></div>
          </div>
        </div>
      </div>
    </div>
    <div class="thing comment" data-fullname="t1_c3">
      <div class="entry"><form><div class="usertext-body"><div class="md"><p>[deleted]</p></div></div></form></div>
    </div>
    <div class="thing comment" data-fullname="t1_c4">
      <div class="entry"><form><div class="usertext-body"><div class="md"><p>selling</p></div></div></form></div>
    </div>
  </div>
</div>
</body></html>`

func newOldReddit(t *testing.T) *httptest.Server {
	t.Helper()
	in := windowStart.Add(36 * time.Hour)
	old := windowStart.Add(-time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /r/stocks/new/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		var sb strings.Builder
		sb.WriteString("<html><body><div id=\"siteTable\">")
		if r.URL.Query().Get("after") == "" {
			sb.WriteString(thing("s", "Tesla megathread", in, "stickied"))
			sb.WriteString(thing("a", "Tesla deliveries", in, ""))
			sb.WriteString(thing("b", "Ford earnings", in, ""))
			sb.WriteString(`</div><span class="next-button"><a href="/r/stocks/new/?count=25&after=t3_b">next</a></span></body></html>`)
		} else {
			sb.WriteString(thing("c", "TSLA / Tesla outlook", in, ""))
			sb.WriteString(thing("d", "Tesla last month", old, ""))
			sb.WriteString(thing("e", "Tesla never reached", in, ""))
			sb.WriteString(`</div></body></html>`)
		}
		fmt.Fprint(w, sb.String())
	})
	mux.HandleFunc("GET /r/stocks/comments/a/slug/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, commentsPage)
	})
	mux.HandleFunc("GET /r/stocks/comments/c/slug/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div class="commentarea"></div></body></html>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWebCollectorCollect(t *testing.T) {
	srv := newOldReddit(t)
	c, err := NewWebCollector(WebConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	posts, err := c.Collect(context.Background(), testRequest("stocks", "missing"))
	require.NoError(t, err)
	require.Len(t, posts, 2)

	a := posts[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, "Tesla deliveries", a.Title)
	assert.Equal(t, windowStart.Add(36*time.Hour), a.CreatedAt)
	assert.Equal(t, "Deliveries beat estimates", a.Body)
	require.Len(t, a.Comments, 3)
	assert.Equal(t, "Strong quarter", a.Comments[0].Body)
	assert.Equal(t, time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC), a.Comments[0].CreatedAt)
	assert.Equal(t, "agreed", a.Comments[1].Body)
	assert.Equal(t, "selling", a.Comments[2].Body)

	assert.Equal(t, "c", posts[1].ID)
	assert.Empty(t, posts[1].Comments)
}

func TestParseCommentsPageLimit(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(commentsPage))
	require.NoError(t, err)

	body, comments := parseCommentsPage(doc.Selection, 1)
	assert.Equal(t, "Deliveries beat estimates", body)
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].ID)

	_, none := parseCommentsPage(doc.Selection, 0)
	assert.Empty(t, none)
}

func TestNewWebCollectorRejectsBadURL(t *testing.T) {
	_, err := NewWebCollector(WebConfig{BaseURL: "::not a url"}, nil)
	assert.Error(t, err)
}
