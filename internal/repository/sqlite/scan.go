package sqlite

import (
	"database/sql"
	"time"
)

// Scan/format helpers shared by the repositories. SQLite has no native
// boolean or timestamp types; booleans are stored as 0/1 and timestamps as
// RFC3339 text.

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullableInt64(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func scanNullableInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func scanNullableInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
