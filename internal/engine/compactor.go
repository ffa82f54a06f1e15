package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RunCompactor periodically folds small .shelf files into one snapshot
// once their count exceeds maxFiles. Items never expire, but unbounded
// small snapshots would make every scan touch more files than needed.
func (c *Catalog) RunCompactor(interval time.Duration, maxFiles int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Compactor started. MaxFiles: %d, Interval: %v", maxFiles, interval)

	for range ticker.C {
		if maxFiles <= 0 {
			continue
		}
		c.compactShelfFiles(maxFiles)
	}
}

func (c *Catalog) compactShelfFiles(maxFiles int) {
	files, err := c.findShelfFiles()
	if err != nil {
		log.Printf("Compactor error: failed to list data dir: %v", err)
		return
	}
	if len(files) <= maxFiles {
		return
	}

	// Oldest first so the merged table keeps creation order.
	sort.Strings(files)

	var rows []ItemRow
	for _, file := range files {
		fileRows, err := c.readerFunc(file, Filter{})
		if err != nil {
			log.Printf("Compactor error: failed to read %s: %v", filepath.Base(file), err)
			return
		}
		rows = append(rows, fileRows...)
	}
	if len(rows) == 0 {
		return
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt < rows[j].CreatedAt
	})

	merged := NewMemTable()
	for _, row := range rows {
		merged.Append(row)
	}

	minTs := merged.MinTimestamp()
	maxTs := merged.MaxTimestamp()
	finalPath := filepath.Join(c.dataDir, fmt.Sprintf("items_%d_%d.shelf", minTs, maxTs))
	tmpPath := finalPath + ".tmp"

	// Stats are untouched here: these rows were already counted at flush.
	if err := c.writerFunc(tmpPath, merged); err != nil {
		log.Printf("Compactor error: failed to write merged snapshot: %v", err)
		return
	}

	// Rename before deleting the originals, so a crash in between never
	// leaves the data only in a .tmp file that scans don't discover.
	if err := os.Rename(tmpPath, finalPath); err != nil {
		log.Printf("Compactor error: failed to finalize merged snapshot: %v", err)
		return
	}

	for _, file := range files {
		if file == finalPath {
			continue // Merged name can collide with an input file
		}
		if err := os.Remove(file); err != nil {
			log.Printf("Compactor error: failed to delete %s: %v", filepath.Base(file), err)
		}
	}

	log.Printf("Compacted %d snapshots into %s (%d rows)", len(files), filepath.Base(finalPath), len(rows))
}
