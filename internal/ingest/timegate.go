package ingest

import (
	"strings"

	"htbot/internal/reading"
)

// Eligible reports whether a reading stamped ts may trigger a push.
// Pushes fire on the top of the hour only. The raw minute is used in
// whatever zone ts carries. An absent or unparsable ts is eligible.
func Eligible(ts string) bool {
	if strings.TrimSpace(ts) == "" {
		return true
	}
	t, ok := reading.ParseTime(ts)
	if !ok {
		return true
	}
	return t.Minute() == 0
}
