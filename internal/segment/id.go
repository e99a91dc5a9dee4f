package segment

import "gitlab.com/rangulvers/wikigraph/identifier"

// newSegmentID generates a surrogate primary key for a new segment row.
// Uniqueness of (start_page, end_page) is enforced by the table's unique
// index; ON CONFLICT leaves an existing row's id untouched.
func newSegmentID() string {
	return identifier.NewRandom()
}
