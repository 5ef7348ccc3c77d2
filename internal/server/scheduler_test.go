package server

import (
	"testing"
	"time"
)

func TestIsDue(t *testing.T) {
	now := time.Now()
	hourAgo := now.Add(-time.Hour)
	twoDaysAgo := now.Add(-48 * time.Hour)
	justNow := now.Add(-time.Minute)

	cases := []struct {
		name string
		cron string
		last *time.Time
		want bool
	}{
		{"daily never run", "@daily", nil, true},
		{"daily recent", "@daily", &hourAgo, false},
		{"daily overdue", "@daily", &twoDaysAgo, true},
		{"hourly recent", "@hourly", &justNow, false},
		{"hourly overdue", "@hourly", &hourAgo, true},
		{"cron never run", "0 0 9 * * * *", nil, true},
		{"cron overdue", "0 0 * * * * *", &hourAgo, true},
		{"invalid cron falls back to daily", "not a cron", &twoDaysAgo, true},
		{"invalid cron recent", "not a cron", &hourAgo, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isDue(c.cron, c.last); got != c.want {
				t.Fatalf("isDue(%q) = %v, want %v", c.cron, got, c.want)
			}
		})
	}
}
