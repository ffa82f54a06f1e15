package engine

import (
	"testing"
)

func TestComputeHistogram(t *testing.T) {
	c := newTestCatalog(t, t.TempDir())

	// Two rows land on disk, two stay in memory.
	c.Ingest(ItemRow{ID: "1", CreatedAt: 105, Title: "A", Tags: []string{"x"}})
	c.Ingest(ItemRow{ID: "2", CreatedAt: 195, Title: "B", Tags: []string{"y"}})
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	c.Ingest(ItemRow{ID: "3", CreatedAt: 205, Title: "C", Tags: []string{"x"}})
	c.Ingest(ItemRow{ID: "4", CreatedAt: 215, Title: "D", Tags: []string{"x"}})

	points, err := c.ComputeHistogram(100, 300, 100, Filter{})
	if err != nil {
		t.Fatalf("ComputeHistogram failed: %v", err)
	}

	counts := make(map[int64]int)
	for _, p := range points {
		counts[p.Time] = p.Count
	}
	if counts[100] != 2 {
		t.Errorf("Bucket 100: expected 2, got %d", counts[100])
	}
	if counts[200] != 2 {
		t.Errorf("Bucket 200: expected 2, got %d", counts[200])
	}

	// Tag query narrows the buckets
	points, err = c.ComputeHistogram(100, 300, 100, Filter{Expr: "x"})
	if err != nil {
		t.Fatalf("ComputeHistogram failed: %v", err)
	}
	counts = make(map[int64]int)
	for _, p := range points {
		counts[p.Time] = p.Count
	}
	if counts[100] != 1 || counts[200] != 2 {
		t.Errorf("Filtered buckets wrong: %v", counts)
	}
}

func TestComputeHistogramRejectsBadInterval(t *testing.T) {
	c := newTestCatalog(t, t.TempDir())
	c.Ingest(ItemRow{ID: "1", CreatedAt: 105, Title: "A"})

	for _, interval := range []int64{0, -100} {
		if _, err := c.ComputeHistogram(100, 300, interval, Filter{}); err == nil {
			t.Errorf("Expected error for interval %d", interval)
		}
	}
}
