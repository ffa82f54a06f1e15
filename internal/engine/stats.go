package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// PersistentStats holds cumulative statistics that survive restarts.
type PersistentStats struct {
	TotalItems int64            `json:"total_items"`
	TotalBytes int64            `json:"total_bytes"`
	TagCounts  map[string]int64 `json:"tag_counts"` // Tag literal -> count
}

// MemStats is a snapshot of MemTable-level statistics.
type MemStats struct {
	RowCount  int
	TagCounts map[string]int64
}

// SystemStats contains high-level system metrics for API response.
type SystemStats struct {
	IngestionRate float64        `json:"ingestion_rate"` // items/sec
	TotalItems    int64          `json:"total_items"`    // total count
	DiskUsage     int64          `json:"disk_usage"`     // bytes
	TagCounts     map[string]int `json:"tag_counts"`     // e.g. "golang": 50
}

// statsFileName is the filename for persisted stats
const statsFileName = ".tagmarks.stats"

// loadPersistentStats reads stats from disk.
func loadPersistentStats(dataDir string) PersistentStats {
	stats := PersistentStats{
		TagCounts: make(map[string]int64),
	}

	path := filepath.Join(dataDir, statsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		// File doesn't exist or can't be read, return empty stats
		return stats
	}

	if err := json.Unmarshal(data, &stats); err != nil {
		// Corrupted file, return empty stats
		return stats
	}

	if stats.TagCounts == nil {
		stats.TagCounts = make(map[string]int64)
	}

	return stats
}

// savePersistentStats writes stats to disk atomically.
func savePersistentStats(dataDir string, stats PersistentStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, statsFileName)
	tmpPath := path + ".tmp"

	// Write to temp file first
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpPath, path)
}

// GetStats merges persisted and in-memory statistics for API consumption.
func (c *Catalog) GetStats() SystemStats {
	// 1. Get snapshot of current MemTable stats
	c.mu.RLock()
	mt := c.mt
	c.mu.RUnlock()
	memStats := mt.GetStats()

	// 2. Get persistent stats under lock
	c.statsLock.RLock()
	diskStats := c.globalStats
	c.statsLock.RUnlock()

	// 3. Merge results
	stats := SystemStats{
		IngestionRate: mt.GetIngestionRate(),
		TotalItems:    diskStats.TotalItems + int64(memStats.RowCount),
		TagCounts:     make(map[string]int),
	}

	for tag, count := range diskStats.TagCounts {
		stats.TagCounts[tag] += int(count)
	}
	for tag, count := range memStats.TagCounts {
		stats.TagCounts[tag] += int(count)
	}

	// 4. Calculate actual Disk Usage
	var size int64
	_ = filepath.Walk(c.dataDir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	stats.DiskUsage = size

	return stats
}
