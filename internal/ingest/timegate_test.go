package ingest

import "testing"

func TestEligible(t *testing.T) {
	cases := []struct {
		ts   string
		want bool
	}{
		{"2025-11-17T13:00:00Z", true},
		{"2025-11-17T13:00:59+07:00", true},
		{"2025-11-17 08:00:00", true},
		{"2025-11-17T13:01:00Z", false},
		{"2025-11-17T13:59:00.123Z", false},
		{"1700000000", false}, // 22:13:20 UTC
		{"1699999200", true},
		{"1700000040", false},
		{"2025", false},
		{"not a time", true},
		{"", true},
		{"   ", true},
	}
	for _, tc := range cases {
		if got := Eligible(tc.ts); got != tc.want {
			t.Fatalf("Eligible(%q)=%v want %v", tc.ts, got, tc.want)
		}
	}
}
