package stall

import (
	"testing"
	"time"
)

func TestCheckStalledThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := New(func() time.Time { return now })

	now = now.Add(2900 * time.Millisecond)
	if d.CheckStalled(3 * time.Second) {
		t.Fatal("stall raised before threshold")
	}

	now = now.Add(100 * time.Millisecond)
	if !d.CheckStalled(3 * time.Second) {
		t.Fatal("stall not raised at threshold")
	}
}

func TestCheckStalledFiresOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := New(func() time.Time { return now })

	now = now.Add(5 * time.Second)
	if !d.CheckStalled(3 * time.Second) {
		t.Fatal("expected stall")
	}
	now = now.Add(5 * time.Second)
	if d.CheckStalled(3 * time.Second) {
		t.Fatal("stall re-fired without growth")
	}
}

func TestGrowthRearms(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := New(func() time.Time { return now })

	now = now.Add(4 * time.Second)
	if !d.CheckStalled(3 * time.Second) {
		t.Fatal("expected first stall")
	}

	d.Growth()
	now = now.Add(2 * time.Second)
	if d.CheckStalled(3 * time.Second) {
		t.Fatal("stall raised too soon after growth")
	}
	now = now.Add(1 * time.Second)
	if !d.CheckStalled(3 * time.Second) {
		t.Fatal("expected stall after re-arm")
	}
}
