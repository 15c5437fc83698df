package corpus

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	chainPartRE = regexp.MustCompile(`\|([^|\[]+)\[(\d+)\]`)

	reviewRE = regexp.MustCompile(`(?i)^\s*(\d{4}-\d{1,2}-\d{1,2})\s+cus?tomer:?\s*(\S+)\s+rating:\s*(\d+)\s+votes:\s*(\d+)\s+helpful:\s*(\d+)`)

	summaryRE = regexp.MustCompile(`(?i)reviews:\s+total:\s+(\d+)\s+downloaded:\s+(\d+)\s+avg\srating:\s+([0-9.]+)`)
)

const reviewDateLayout = "2006-1-2"

// lineRule classifies one trimmed line inside a record. match receives the
// lower-cased line; apply receives the original.
type lineRule struct {
	name  string
	match func(lower string) bool
	apply func(r *Record, line string)
}

// rules are tried in order and the first match wins. Lines no rule
// matches are noise and are dropped.
var rules = []lineRule{
	{name: "asin", match: hasTag("asin:"), apply: func(r *Record, line string) { r.ASIN = tagValue(line) }},
	{name: "title", match: hasTag("title:"), apply: func(r *Record, line string) { r.Title = tagValue(line) }},
	{name: "group", match: hasTag("group:"), apply: func(r *Record, line string) { r.Group = tagValue(line) }},
	{name: "salesrank", match: hasTag("salesrank:"), apply: applySalesRank},
	{name: "similar", match: hasTag("similar:"), apply: applySimilar},
	{name: "chain", match: func(lower string) bool { return strings.Contains(lower, "|") }, apply: applyChain},
	{name: "summary", match: hasTag("reviews: total:"), apply: applySummary},
	{name: "review", match: func(string) bool { return true }, apply: applyReview},
}

func hasTag(tag string) func(string) bool {
	return func(lower string) bool { return strings.HasPrefix(lower, tag) }
}

// tagValue returns the trimmed text after the first colon.
func tagValue(line string) string {
	_, v, _ := strings.Cut(line, ":")
	return strings.TrimSpace(v)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func applySalesRank(r *Record, line string) {
	v := tagValue(line)
	if !isDigits(v) {
		r.SalesRank = nil
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.SalesRank = nil
		return
	}
	r.SalesRank = &n
}

func applySimilar(r *Record, line string) {
	parts := strings.Fields(line)
	if len(parts) > 1 && isDigits(parts[1]) {
		r.SimilarCount = atoi(parts[1])
	}
	if len(parts) > 2 {
		r.Similar = append(r.Similar[:0], parts[2:]...)
	}
}

func applyChain(r *Record, line string) {
	for _, n := range parseChain(line) {
		r.addNode(n)
	}
}

func applySummary(r *Record, line string) {
	m := summaryRE.FindStringSubmatch(line)
	if m == nil {
		return
	}
	avg, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		avg = 0
	}
	r.Summary = &ReviewSummary{
		Total:      atoi(m[1]),
		Downloaded: atoi(m[2]),
		AvgRating:  avg,
	}
}

func applyReview(r *Record, line string) {
	m := reviewRE.FindStringSubmatch(line)
	if m == nil {
		return
	}
	date, err := time.Parse(reviewDateLayout, m[1])
	if err != nil {
		date = time.Time{}
	}
	r.Reviews = append(r.Reviews, Review{
		Date:     date,
		Customer: m[2],
		Rating:   atoi(m[3]),
		Votes:    atoi(m[4]),
		Helpful:  atoi(m[5]),
	})
}

// parseChain reads |Name[id]|Name[id]|... into nodes where each node is
// the parent of the next. Ids that do not fit an int64 are skipped.
func parseChain(line string) []ChainNode {
	parts := chainPartRE.FindAllStringSubmatch(line, -1)
	if len(parts) == 0 {
		return nil
	}
	nodes := make([]ChainNode, 0, len(parts))
	var parent int64
	for _, p := range parts {
		id, err := strconv.ParseInt(p[2], 10, 64)
		if err != nil {
			continue
		}
		nodes = append(nodes, ChainNode{
			ExternalID: id,
			Name:       strings.TrimSpace(p[1]),
			ParentID:   parent,
		})
		parent = id
	}
	return nodes
}

// parseSourceID reads the value of an Id: line; anything non-numeric is 0.
func parseSourceID(line string) int64 {
	id, err := strconv.ParseInt(tagValue(line), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
