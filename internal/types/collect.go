package types

import "time"

type Comment struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID        string    `json:"id"`
	Venue     string    `json:"venue"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	Comments  []Comment `json:"comments"`
}

// Texts flattens a post into classifier inputs: title+body first, then comments.
func (p Post) Texts() []string {
	out := make([]string, 0, len(p.Comments)+1)
	head := p.Title
	if p.Body != "" {
		head += "\n" + p.Body
	}
	if head != "" {
		out = append(out, head)
	}
	for _, c := range p.Comments {
		if c.Body != "" {
			out = append(out, c.Body)
		}
	}
	return out
}

// CollectRequest bounds one collection run. Start is inclusive, End exclusive.
type CollectRequest struct {
	Company            string
	Keywords           []string
	Venues             []string
	Start              time.Time
	End                time.Time
	MaxPostsPerVenue   int
	MaxCommentsPerPost int
}

func (r CollectRequest) InWindow(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

type PipelineResult struct {
	Company      string         `json:"company"`
	DateFor      string         `json:"date_for"`
	Venues       []string       `json:"venues"`
	Posts        int            `json:"posts"`
	Texts        int            `json:"texts"`
	Tally        SentimentTally `json:"tally"`
	Direction    Direction      `json:"direction,omitempty"`
	Prediction   *Prediction    `json:"prediction,omitempty"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
}
