package domain

import (
	"fmt"
	"math"
	"time"
)

// BatchType selects how entities are windowed while streaming.
type BatchType string

// Batch types.
const (
	// BatchOffset windows by numeric offset.
	BatchOffset BatchType = "offset"

	// BatchPKFilters windows by primary key ranges.
	BatchPKFilters BatchType = "pk_filters"
)

// IsValid returns true if the batch type is recognised.
func (b BatchType) IsValid() bool {
	return b == BatchOffset || b == BatchPKFilters
}

// IndexStatus describes a declared index and its backend state.
type IndexStatus struct {
	Name   string
	Models []string
	Exists bool
	Count  int
}

// IndexRequest asks for an index management action.
type IndexRequest struct {
	Action CommandAction

	// Indices restricts the action; empty means every declared index.
	Indices []string

	// IgnoreError continues with the next index after a backend error.
	IgnoreError bool
}

// IndexResult reports the outcome of an index action for one index.
type IndexResult struct {
	Index  string
	Action CommandAction
	Err    error
}

// DocumentRequest asks for a document management action.
type DocumentRequest struct {
	Action   CommandAction
	Filters  []string
	Excludes []string
	Indices  []string
	Models   []string

	// Count limits the number of entities per document; 0 means all.
	Count    int
	Database string

	BatchSize int
	BatchType BatchType

	Parallel bool
	Refresh  *bool

	// Missing only processes entities absent from the index.
	Missing bool
}

// DocumentPlanItem is one document a request will process.
type DocumentPlanItem struct {
	Document string
	Model    string
	Index    string
	Query    Query
	Count    int
}

// DocumentPlan is a validated document request.
type DocumentPlan struct {
	Request DocumentRequest
	Items   []DocumentPlanItem
}

// Total returns the number of entities the plan processes.
func (p DocumentPlan) Total() int {
	n := 0
	for _, item := range p.Items {
		n += item.Count
	}
	return n
}

// DocumentResult reports the outcome of one plan item.
type DocumentResult struct {
	Document string
	Model    string
	Action   CommandAction
	Success  int
	Errors   []BulkItemError
}

// ReasonCounts groups the errors by reason.
func (r DocumentResult) ReasonCounts() map[string]int {
	return CountReasons(r.Errors)
}

// Progress reports the advancement of an entity stream.
type Progress struct {
	Action  CommandAction
	Model   string
	Done    int
	Total   int
	Elapsed time.Duration
}

// Percent returns the completion percentage.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 100
	}
	pct := p.Done * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ETA estimates the remaining duration from the rate so far.
func (p Progress) ETA() time.Duration {
	if p.Done <= 0 || p.Done >= p.Total {
		return 0
	}
	perItem := float64(p.Elapsed) / float64(p.Done)
	return time.Duration(perItem * float64(p.Total-p.Done))
}

// String renders "Indexing Country: 42% (eta 3 secs)".
func (p Progress) String() string {
	participle := p.Action.Participle()
	if participle != "" {
		participle = string(participle[0]-('a'-'A')) + participle[1:]
	}
	return fmt.Sprintf("%s %s: %d%% (%s)", participle, p.Model, p.Percent(), FormatETA(p.ETA()))
}

// FormatETA formats a remaining duration in seconds, or minutes above two minutes.
func FormatETA(d time.Duration) string {
	secs := d.Seconds()
	if secs > 120 {
		return fmt.Sprintf("eta %d mins", int(math.Round(secs/60)))
	}
	return fmt.Sprintf("eta %d secs", int(math.Round(secs)))
}

// ProgressSink receives progress reports.
type ProgressSink func(Progress)

// SearchResult is a hit resolved back to its entity.
type SearchResult struct {
	Hit    Hit
	Entity *Entity
}
