package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func sampleRows() []ItemRow {
	return []ItemRow{
		{ID: "1", CreatedAt: 100, Title: "Go Concurrency", Body: "channels and goroutines", Tags: []string{"go", "programming"}},
		{ID: "2", CreatedAt: 200, Title: "Postgres Tips", Body: "indexes explained", Tags: []string{"db", "postgres"}},
		{ID: "3", CreatedAt: 300, Title: "Go Database Drivers", Body: "talking to postgres from go", Tags: []string{"go", "db"}},
	}
}

func TestMemTableAppend(t *testing.T) {
	mt := NewMemTable()
	for _, row := range sampleRows() {
		mt.Append(row)
	}

	if mt.Len() != 3 {
		t.Errorf("Expected 3 rows, got %d", mt.Len())
	}
	if mt.GetSize() == 0 {
		t.Error("SizeBytes should grow after appends")
	}
	if mt.MinTimestamp() != 100 || mt.MaxTimestamp() != 300 {
		t.Errorf("Expected ts range [100, 300], got [%d, %d]", mt.MinTimestamp(), mt.MaxTimestamp())
	}
}

func TestMemTableSearchNewestFirst(t *testing.T) {
	mt := NewMemTable()
	for _, row := range sampleRows() {
		mt.Append(row)
	}

	rows := mt.Search(Filter{}, -1)
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0].ID != "3" || rows[2].ID != "1" {
		t.Errorf("Expected newest-first order, got %s..%s", rows[0].ID, rows[2].ID)
	}

	rows = mt.Search(Filter{}, 2)
	if len(rows) != 2 {
		t.Errorf("Expected limit to cap results at 2, got %d", len(rows))
	}
}

func TestMemTableSearchFilters(t *testing.T) {
	mt := NewMemTable()
	for _, row := range sampleRows() {
		mt.Append(row)
	}

	// Tag match is case-insensitive
	rows := mt.Search(Filter{Tag: "GO"}, -1)
	if len(rows) != 2 {
		t.Errorf("Tag filter: expected 2 rows, got %d", len(rows))
	}

	// Free-text over title and body
	rows = mt.Search(Filter{Query: "POSTGRES"}, -1)
	if len(rows) != 2 {
		t.Errorf("Query filter: expected 2 rows, got %d", len(rows))
	}

	// Time window
	rows = mt.Search(Filter{MinTime: 150, MaxTime: 250}, -1)
	if len(rows) != 1 || rows[0].ID != "2" {
		t.Errorf("Time filter: expected row 2, got %v", rows)
	}
}

func TestMemTableSearchWithTagQuery(t *testing.T) {
	mt := NewMemTable()
	for _, row := range sampleRows() {
		mt.Append(row)
	}

	node, err := ParseTagQuery("go AND db")
	if err != nil {
		t.Fatalf("ParseTagQuery failed: %v", err)
	}

	rows := mt.SearchWithTagQuery(Filter{}, node, -1)
	if len(rows) != 1 || rows[0].ID != "3" {
		t.Errorf("Expected only row 3, got %v", rows)
	}

	node, err = ParseTagQuery("postgres OR programming")
	if err != nil {
		t.Fatalf("ParseTagQuery failed: %v", err)
	}
	rows = mt.SearchWithTagQuery(Filter{}, node, -1)
	if len(rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(rows))
	}

	node, err = ParseTagQuery("NOT go")
	if err != nil {
		t.Fatalf("ParseTagQuery failed: %v", err)
	}
	rows = mt.SearchWithTagQuery(Filter{}, node, -1)
	if len(rows) != 1 || rows[0].ID != "2" {
		t.Errorf("Expected only row 2, got %v", rows)
	}
}

func TestMemTableReset(t *testing.T) {
	mt := NewMemTable()
	for _, row := range sampleRows() {
		mt.Append(row)
	}

	mt.Reset()
	if mt.Len() != 0 {
		t.Errorf("Expected 0 rows after reset, got %d", mt.Len())
	}
	if mt.GetSize() != 0 {
		t.Errorf("Expected 0 bytes after reset, got %d", mt.GetSize())
	}
}

func TestMemTableStatsTickerStops(t *testing.T) {
	mt := NewMemTable()
	ctx, cancel := context.WithCancel(context.Background())

	mt.StartStatsTicker(ctx, 5*time.Millisecond)
	mt.Append(sampleRows()[0])

	// The ticker drains the write counter while running
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt64(&mt.writeCounter) != 0 {
		t.Fatal("Ticker should drain the write counter")
	}

	cancel()
	time.Sleep(30 * time.Millisecond)

	// A stopped ticker leaves the counter alone
	mt.Append(sampleRows()[1])
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt64(&mt.writeCounter) != 1 {
		t.Error("Ticker goroutine should exit after cancel")
	}
}

func TestMemTableStats(t *testing.T) {
	mt := NewMemTable()
	for _, row := range sampleRows() {
		mt.Append(row)
	}

	stats := mt.GetStats()
	if stats.RowCount != 3 {
		t.Errorf("Expected RowCount 3, got %d", stats.RowCount)
	}
	if stats.TagCounts["go"] != 2 || stats.TagCounts["db"] != 2 || stats.TagCounts["postgres"] != 1 {
		t.Errorf("Unexpected tag counts: %v", stats.TagCounts)
	}
}
