package corpus

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMissingASIN  = errors.New("record ASIN is required")
	ErrMissingTitle = errors.New("record title is required")
)

// Record is one product block of the corpus, from its Id: line up to the next.
type Record struct {
	SourceID     int64
	ASIN         string
	Title        string
	Group        string
	SalesRank    *int
	SimilarCount int // declared on the similar: line, not enforced
	Similar      []string
	Categories   []ChainNode
	Summary      *ReviewSummary
	Reviews      []Review
}

// ChainNode is one step of a |Name[id]|Name[id]| classification chain.
// ParentID is 0 for the root of a chain.
type ChainNode struct {
	ExternalID int64
	Name       string
	ParentID   int64
}

// ReviewSummary is the "reviews: total: N downloaded: N avg rating: X" line.
type ReviewSummary struct {
	Total      int
	Downloaded int
	AvgRating  float64
}

// Review is a single customer review line.
type Review struct {
	Date     time.Time // zero when unparsable
	Customer string
	Rating   int
	Votes    int
	Helpful  int
}

// Validate checks if the record has required fields
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ASIN) == "" {
		return ErrMissingASIN
	}

	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingTitle
	}

	return nil
}

// addNode appends n unless the record already carries its external id.
func (r *Record) addNode(n ChainNode) {
	for _, existing := range r.Categories {
		if existing.ExternalID == n.ExternalID {
			return
		}
	}
	r.Categories = append(r.Categories, n)
}
