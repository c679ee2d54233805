package domain

// BulkAction is the operation of one bulk request.
type BulkAction string

// Bulk operations understood by the search backend.
const (
	ActionIndex  BulkAction = "index"
	ActionCreate BulkAction = "create"
	ActionUpdate BulkAction = "update"
	ActionDelete BulkAction = "delete"
)

// IsValid returns true if the action is recognised.
func (a BulkAction) IsValid() bool {
	switch a {
	case ActionIndex, ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (a BulkAction) String() string {
	return string(a)
}

// BulkRequest is one operation sent to the backend as part of a batch.
// Source carries the document for index and create, Doc the partial
// document for update; delete carries neither.
type BulkRequest struct {
	Action BulkAction
	Index  string
	ID     string
	Source map[string]any
	Doc    map[string]any
}

// BulkItemResult is the backend's answer for one request.
type BulkItemResult struct {
	Action BulkAction
	Index  string
	ID     string
	Status int

	// Result is the backend outcome, e.g. "created", "updated", "not_found".
	Result string
	Type   string
	Reason string
}

// OK reports whether the item succeeded.
func (r BulkItemResult) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// BulkResponse is the backend's answer for a batch, in request order.
type BulkResponse struct {
	Items []BulkItemResult
}

// BulkItemError describes one rejected request.
type BulkItemError struct {
	Action BulkAction
	Index  string
	ID     string
	Status int
	Type   string

	// Reason is the backend-provided reason, used for grouped reporting.
	Reason string
}

// ItemError converts a failed item result into a BulkItemError.
func (r BulkItemResult) ItemError() BulkItemError {
	reason := r.Reason
	if reason == "" {
		reason = r.Result
	}
	return BulkItemError{
		Action: r.Action,
		Index:  r.Index,
		ID:     r.ID,
		Status: r.Status,
		Type:   r.Type,
		Reason: reason,
	}
}

// CountReasons groups errors by reason.
func CountReasons(errs []BulkItemError) map[string]int {
	counts := make(map[string]int)
	for _, e := range errs {
		counts[e.Reason]++
	}
	return counts
}
