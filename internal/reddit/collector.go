// Package reddit collects posts and comments from subreddits, either through
// the OAuth API or by scraping old.reddit.com.
package reddit

import (
	"context"
	"strings"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

const defaultUserAgent = "stock-sentiment-predictor/1.0"

// source is what differs between the API and the scraper.
type source interface {
	// listNew walks a venue's newest-first listing, offering each post to scan
	// until scan says stop or the listing ends.
	listNew(ctx context.Context, venue string, scan *windowScan) error
	// loadComments fills p.Comments (and p.Body when the listing lacked it).
	loadComments(ctx context.Context, p *types.Post, limit int) error
}

// windowScan keeps the posts of one venue that fall inside the window and
// match a keyword.
type windowScan struct {
	req  types.CollectRequest
	kept []types.Post
}

// offer reports whether the listing should keep going.
func (w *windowScan) offer(p types.Post) bool {
	if p.CreatedAt.Before(w.req.Start) {
		return false
	}
	if !w.req.InWindow(p.CreatedAt) {
		return true
	}
	if !MatchesKeywords(p.Title+" "+p.Body, w.req.Keywords) {
		return true
	}
	w.kept = append(w.kept, p)
	return w.req.MaxPostsPerVenue <= 0 || len(w.kept) < w.req.MaxPostsPerVenue
}

// MatchesKeywords is a case-insensitive substring match; no keywords matches everything.
func MatchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text = strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// collect runs the shared flow: list each venue, filter titles for relevance,
// then fetch comments for what survived. A venue that cannot be read is skipped.
func collect(ctx context.Context, src source, filter interfaces.RelevanceFilter, req types.CollectRequest) ([]types.Post, error) {
	var out []types.Post
	for _, venue := range req.Venues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scan := &windowScan{req: req}
		if err := src.listNew(ctx, venue, scan); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn(ctx, "Cannot read venue, skipping", "venue", venue, "error", err)
			continue
		}
		if len(scan.kept) == 0 {
			logger.Info(ctx, "No posts matched keyword and window", "venue", venue)
			continue
		}

		posts, err := keepRelevant(ctx, filter, req.Company, scan.kept)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "Venue scanned", "venue", venue, "in_window", len(scan.kept), "relevant", len(posts))

		for i := range posts {
			if err := src.loadComments(ctx, &posts[i], req.MaxCommentsPerPost); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Warn(ctx, "Failed to load comments", "venue", venue, "post", posts[i].ID, "error", err)
			}
		}
		out = append(out, posts...)
	}
	return out, nil
}

func keepRelevant(ctx context.Context, filter interfaces.RelevanceFilter, company string, posts []types.Post) ([]types.Post, error) {
	if filter == nil {
		return posts, nil
	}
	titles := make([]string, len(posts))
	for i, p := range posts {
		titles[i] = p.Title
	}
	keep, err := filter.FilterRelevant(ctx, company, titles)
	if err != nil {
		return nil, err
	}
	var out []types.Post
	for i, p := range posts {
		if i < len(keep) && keep[i] {
			out = append(out, p)
		}
	}
	return out, nil
}
