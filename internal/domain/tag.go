package domain

// Tag is a tree node. A tag with a non-nil Query is a filtered tag:
// its membership is the set of cards and notes matching the query,
// recomputed on demand rather than user-assigned.
type Tag struct {
	ID          int64
	ParentID    *int64
	Name        string
	Description string
	Query       *string
	AutoDelete  bool
}

// Filtered reports whether the tag's membership is query-driven.
func (t Tag) Filtered() bool {
	return t.Query != nil && *t.Query != ""
}
