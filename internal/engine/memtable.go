package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemTable stores items in columnar format.
// Columns are exported for access by storage package.
type MemTable struct {
	mu sync.RWMutex

	// Exported Columns
	CreatedCol []int64    // Creation timestamp
	IDCol      []string   // Item ID
	TitleCol   []string   // Title
	BodyCol    []string   // Body content
	TagsCol    [][]string // Tags per item

	// Metadata
	SizeBytes int64 // Estimated memory usage in bytes

	// Stats
	writeCounter int64   // Atomic counter for ingestion
	currentRate  float64 // Items per second
}

// NewMemTable initializes MemTable with pre-allocated capacity.
func NewMemTable() *MemTable {
	cap := 4096
	return &MemTable{
		CreatedCol: make([]int64, 0, cap),
		IDCol:      make([]string, 0, cap),
		TitleCol:   make([]string, 0, cap),
		BodyCol:    make([]string, 0, cap),
		TagsCol:    make([][]string, 0, cap),
		SizeBytes:  0,
	}
}

// Append adds an item.
func (mt *MemTable) Append(row ItemRow) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.CreatedCol = append(mt.CreatedCol, row.CreatedAt)
	mt.IDCol = append(mt.IDCol, row.ID)
	mt.TitleCol = append(mt.TitleCol, row.Title)
	mt.BodyCol = append(mt.BodyCol, row.Body)
	mt.TagsCol = append(mt.TagsCol, row.Tags)

	// Update size estimate: title + body + id + tags + 8 (timestamp)
	addedSize := int64(len(row.Title) + len(row.Body) + len(row.ID) + 8)
	for _, tag := range row.Tags {
		addedSize += int64(len(tag))
	}
	atomic.AddInt64(&mt.SizeBytes, addedSize)

	// Update stats counter
	atomic.AddInt64(&mt.writeCounter, 1)
}

// GetSize returns the estimated memory usage in bytes.
func (mt *MemTable) GetSize() int64 {
	return atomic.LoadInt64(&mt.SizeBytes)
}

// Len returns the number of rows.
func (mt *MemTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.CreatedCol)
}

// Reset clears all column data for memory reuse.
func (mt *MemTable) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.CreatedCol = mt.CreatedCol[:0]
	mt.IDCol = mt.IDCol[:0]
	mt.TitleCol = mt.TitleCol[:0]
	mt.BodyCol = mt.BodyCol[:0]
	mt.TagsCol = mt.TagsCol[:0]
	atomic.StoreInt64(&mt.SizeBytes, 0)
}

// MinTimestamp returns the minimum creation timestamp (first element).
func (mt *MemTable) MinTimestamp() int64 {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	if len(mt.CreatedCol) == 0 {
		return 0
	}
	return mt.CreatedCol[0]
}

// MaxTimestamp returns the maximum creation timestamp (last element).
func (mt *MemTable) MaxTimestamp() int64 {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	if len(mt.CreatedCol) == 0 {
		return 0
	}
	return mt.CreatedCol[len(mt.CreatedCol)-1]
}

// rowAt builds an ItemRow from column index i. Caller must hold mu.
func (mt *MemTable) rowAt(i int) ItemRow {
	return ItemRow{
		ID:        mt.IDCol[i],
		CreatedAt: mt.CreatedCol[i],
		Title:     mt.TitleCol[i],
		Body:      mt.BodyCol[i],
		Tags:      mt.TagsCol[i],
	}
}

// matchFilter applies the plain filter fields (no tag query) to row i.
// Caller must hold mu.
func (mt *MemTable) matchFilter(i int, filter Filter) bool {
	ts := mt.CreatedCol[i]
	if filter.MinTime > 0 && ts < filter.MinTime {
		return false
	}
	if filter.MaxTime > 0 && ts > filter.MaxTime {
		return false
	}

	if filter.Tag != "" {
		found := false
		for _, tag := range mt.TagsCol[i] {
			if strings.EqualFold(tag, filter.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Query != "" {
		q := strings.ToLower(filter.Query)
		if !strings.Contains(strings.ToLower(mt.TitleCol[i]), q) &&
			!strings.Contains(strings.ToLower(mt.BodyCol[i]), q) {
			return false
		}
	}

	return true
}

// Search filters in-memory items based on criteria, newest first.
// A negative limit means no limit.
func (mt *MemTable) Search(filter Filter, limit int) []ItemRow {
	return mt.SearchWithTagQuery(filter, nil, limit)
}

// SearchWithTagQuery filters in-memory items, additionally matching a
// parsed tag query node, newest first.
func (mt *MemTable) SearchWithTagQuery(filter Filter, node interface{}, limit int) []ItemRow {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	var result []ItemRow
	rowCount := len(mt.CreatedCol)

	// Scan backwards (newest first)
	for i := rowCount - 1; i >= 0; i-- {
		if limit >= 0 && len(result) >= limit {
			break
		}
		if !mt.matchFilter(i, filter) {
			continue
		}

		row := mt.rowAt(i)
		if node != nil && !MatchTagQuery(node, &row) {
			continue
		}

		result = append(result, row)
	}

	return result
}

// GetStats returns a snapshot of per-table statistics.
func (mt *MemTable) GetStats() MemStats {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	stats := MemStats{
		RowCount:  len(mt.CreatedCol),
		TagCounts: make(map[string]int64),
	}
	for _, tags := range mt.TagsCol {
		for _, tag := range tags {
			stats.TagCounts[tag]++
		}
	}
	return stats
}

// StartStatsTicker starts a background ticker to calculate ingestion
// rate. The goroutine exits when ctx is cancelled, so retired tables
// don't leak tickers.
func (mt *MemTable) StartStatsTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				count := atomic.SwapInt64(&mt.writeCounter, 0)
				rate := float64(count) / interval.Seconds()
				mt.mu.Lock()
				mt.currentRate = rate
				mt.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// GetIngestionRate returns the current ingestion rate (items/sec).
func (mt *MemTable) GetIngestionRate() float64 {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.currentRate
}
