package db

import "strings"

// IsUniqueViolation reports whether err is a Postgres unique violation.
// With a constraintName the check narrows to that constraint; otherwise
// any duplicate-key error matches. String matching keeps the helper
// working for both the postgres and sqlite drivers used in tests.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
