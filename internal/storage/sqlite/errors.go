package sqlite

import "strings"

// isUniqueConstraint reports whether err came from a UNIQUE constraint
// violation. modernc.org/sqlite surfaces these as plain error strings
// rather than a typed sentinel, so this matches on message text.
func isUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
