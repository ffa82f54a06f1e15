package engine

import (
	"errors"
	"sort"
)

type HistogramPoint struct {
	Time  int64 `json:"time"`
	Count int   `json:"count"`
}

// ComputeHistogram aggregates item counts over creation-time buckets.
func (c *Catalog) ComputeHistogram(start, end int64, interval int64, filter Filter) ([]HistogramPoint, error) {
	if interval <= 0 {
		return nil, errors.New("histogram interval must be positive")
	}

	// Map to store bucket counts: timestamp -> count
	buckets := make(map[int64]int)

	// Parse the tag query if present
	var node interface{}
	if filter.Expr != "" {
		parsed, err := ParseTagQuery(filter.Expr)
		if err != nil {
			return nil, err
		}
		node = parsed
	}

	// 1. Scan MemTable
	c.mu.RLock()
	mt := c.mt
	c.mu.RUnlock()

	mt.mu.RLock()
	rowCount := len(mt.CreatedCol)
	for i := 0; i < rowCount; i++ {
		ts := mt.CreatedCol[i]
		if ts < start || ts > end {
			continue
		}
		if !mt.matchFilter(i, filter) {
			continue
		}

		row := mt.rowAt(i)
		if node != nil && !MatchTagQuery(node, &row) {
			continue
		}

		// Bucketize
		bucket := (ts / interval) * interval
		buckets[bucket]++
	}
	mt.mu.RUnlock()

	// 2. Scan Disk Files
	files, err := c.findShelfFiles()
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		// File Pruning: Parse timestamps from filename (items_minTs_maxTs.shelf)
		minTs, maxTs, err := parseTsFromFilename(file)
		if err == nil {
			if start > 0 && maxTs < start {
				continue // File is too old
			}
			if end > 0 && minTs > end {
				continue // File is too new
			}
		}

		// Read file with basic filter (time pruning)
		rows, err := c.readerFunc(file, filter)
		if err != nil {
			continue
		}

		for _, row := range rows {
			if row.CreatedAt < start || row.CreatedAt > end {
				continue
			}

			if node != nil && !MatchTagQuery(node, &row) {
				continue
			}

			bucket := (row.CreatedAt / interval) * interval
			buckets[bucket]++
		}
	}

	// 3. Convert Map to Sorted Slice
	var points []HistogramPoint
	for t, count := range buckets {
		points = append(points, HistogramPoint{Time: t, Count: count})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})

	return points, nil
}
