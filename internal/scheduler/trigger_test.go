package scheduler

import (
	"context"
	"testing"
	"time"

	logx "sitedigest/pkg/logx"
)

func TestTriggerStartStop(t *testing.T) {
	loc := time.FixedZone("X", 3*60*60)
	tr, err := NewTrigger("", loc, func(context.Context, time.Time) {}, logx.Nop())
	if err != nil {
		t.Fatalf("NewTrigger: %v", err)
	}
	if !tr.Next().IsZero() {
		t.Fatal("Next before Start should be zero")
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	next := tr.Next()
	if next.IsZero() {
		t.Fatal("Next after Start is zero")
	}
	if next.Minute() != 0 || next.Second() != 0 {
		t.Fatalf("hourly trigger next = %v, want top of hour", next)
	}

	if err := tr.Apply("@every 10m", time.UTC); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := tr.Apply("bogus", time.UTC); err == nil {
		t.Fatal("Apply accepted an invalid schedule")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tr.Stop(ctx)
	if !tr.Next().IsZero() {
		t.Fatal("Next after Stop should be zero")
	}
}

func TestNormalizeTrigger(t *testing.T) {
	cases := []struct {
		in, want string
		ok       bool
	}{
		{"", "@hourly", true},
		{"0 */2 * * *", "0 */2 * * *", true},
		{"30m", "@every 30m0s", true},
		{"every tuesday-ish", "", false},
		{"cron:", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeTrigger(tc.in)
			if (err == nil) != tc.ok {
				t.Fatalf("NormalizeTrigger(%q) err = %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeTrigger(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
