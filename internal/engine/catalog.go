package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SnapshotReaderFunc is a function type for reading .shelf files with filtering.
type SnapshotReaderFunc func(filename string, filter Filter) ([]ItemRow, error)

// SnapshotWriterFunc is a function type for writing a MemTable to a .shelf file.
type SnapshotWriterFunc func(path string, mt *MemTable) error

// Catalog handles query execution and data lifecycle across persisted items.
type Catalog struct {
	dataDir    string
	mt         *MemTable
	readerFunc SnapshotReaderFunc
	writerFunc SnapshotWriterFunc

	// Configuration
	MaxTableSize int64

	// mu protects mt pointer swaps and statsCancel
	mu sync.RWMutex

	// statsCancel stops the current MemTable's ingestion-rate ticker
	statsCancel context.CancelFunc

	// Persistent Stats
	globalStats PersistentStats
	statsLock   sync.RWMutex // Protects globalStats

	// WAL for crash recovery
	wal *WAL
}

// NewCatalog creates a new Catalog, replaying the WAL for crash recovery.
func NewCatalog(dataDir string, mt *MemTable, readerFunc SnapshotReaderFunc, writerFunc SnapshotWriterFunc) *Catalog {
	// Initialize WAL
	walPath := filepath.Join(dataDir, "wal.log")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Printf("Warning: failed to create data dir for WAL: %v", err)
	}

	wal, err := OpenWAL(walPath)
	if err != nil {
		log.Printf("Warning: failed to open WAL: %v", err)
	}

	c := &Catalog{
		dataDir:      dataDir,
		mt:           mt,
		readerFunc:   readerFunc,
		writerFunc:   writerFunc,
		MaxTableSize: 64 * 1024 * 1024, // 64MB Default
		globalStats:  loadPersistentStats(dataDir),
		wal:          wal,
	}
	c.startStatsTicker()

	// Crash Recovery: Replay WAL if it has data
	if wal != nil {
		recoveredRows, err := wal.Replay()
		if err == nil && len(recoveredRows) > 0 {
			log.Printf("Crash recovery: replaying %d items from WAL...", len(recoveredRows))
			for _, row := range recoveredRows {
				// Re-append to current MemTable.
				// We avoid calling c.Ingest here to prevent re-writing to WAL.
				c.mt.Append(row)
			}
		} else if err != nil {
			log.Printf("WAL replay warning: %v", err)
		}
	}

	return c
}

// startStatsTicker runs the ingestion-rate ticker on the current
// MemTable, stopping the previous table's ticker first. Caller must
// hold c.mu when the catalog is already shared.
func (c *Catalog) startStatsTicker() {
	if c.statsCancel != nil {
		c.statsCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.statsCancel = cancel
	c.mt.StartStatsTicker(ctx, 1*time.Second)
}

// Close stops the stats ticker and the WAL.
func (c *Catalog) Close() error {
	c.mu.Lock()
	if c.statsCancel != nil {
		c.statsCancel()
		c.statsCancel = nil
	}
	c.mu.Unlock()

	if c.wal != nil {
		return c.wal.Close()
	}
	return nil
}

// Ingest adds an item to the WAL and MemTable, triggering a background
// flush if needed. A missing ID or timestamp is filled in. Returns the
// stored row.
func (c *Catalog) Ingest(row ItemRow) ItemRow {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt == 0 {
		row.CreatedAt = time.Now().UnixNano()
	}

	// 1. Write to WAL first for durability
	if c.wal != nil {
		if err := c.wal.Write(row); err != nil {
			log.Printf("WAL write error: %v", err)
		}
	}

	// 2. Append to MemTable
	c.mt.Append(row)

	if c.mt.GetSize() >= c.MaxTableSize {
		c.mu.Lock()
		// Double check size under lock
		if c.mt.GetSize() < c.MaxTableSize {
			c.mu.Unlock()
			return row
		}

		log.Printf("MemTable reached threshold (%d MB), swapping for async flush...", c.MaxTableSize/(1024*1024))
		oldTable := c.mt
		c.mt = NewMemTable()
		// Move the stats ticker to the new table; the retired table's
		// ticker goroutine is cancelled rather than leaked.
		c.startStatsTicker()
		c.mu.Unlock()

		// Background flush
		go c.flushMemTable(oldTable)
	}

	return row
}

// SyncWAL flushes the WAL file to disk.
func (c *Catalog) SyncWAL() {
	if c.wal != nil {
		if err := c.wal.Sync(); err != nil {
			log.Printf("WAL sync error: %v", err)
		}
	}
}

// Flush writes the current MemTable to disk and resets it.
func (c *Catalog) Flush() error {
	if c.mt.Len() == 0 {
		return nil
	}

	c.mu.RLock()
	mt := c.mt
	c.mu.RUnlock()

	if err := c.writeSnapshot(mt); err != nil {
		return err
	}

	mt.Reset()

	if c.wal != nil {
		if err := c.wal.Reset(); err != nil {
			log.Printf("WAL reset error: %v", err)
		}
	}
	return nil
}

// flushMemTable persists a swapped-out MemTable in the background.
func (c *Catalog) flushMemTable(mt *MemTable) {
	if mt.Len() == 0 {
		return
	}

	if err := c.writeSnapshot(mt); err != nil {
		log.Printf("Background flush error: %v", err)
		return
	}

	// WAL reset after the rows are safely persisted
	if c.wal != nil {
		if err := c.wal.Reset(); err != nil {
			log.Printf("WAL reset error: %v", err)
		}
	}
}

// writeSnapshot writes a MemTable to a .shelf file and folds its
// statistics into the persisted totals.
func (c *Catalog) writeSnapshot(mt *MemTable) error {
	// Ensure data directory exists
	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		return err
	}

	minTs := mt.MinTimestamp()
	maxTs := mt.MaxTimestamp()
	filename := fmt.Sprintf("items_%d_%d.shelf", minTs, maxTs)
	path := filepath.Join(c.dataDir, filename)

	// === Step 1: Write file to disk ===
	if err := c.writerFunc(path, mt); err != nil {
		return err
	}

	// === Step 2: Atomic stats transfer ===
	memStats := mt.GetStats()

	mt.mu.RLock()
	var totalBytes int64
	for i := 0; i < memStats.RowCount; i++ {
		totalBytes += int64(len(mt.TitleCol[i]) + len(mt.BodyCol[i]) + len(mt.IDCol[i]) + 8)
		for _, tag := range mt.TagsCol[i] {
			totalBytes += int64(len(tag))
		}
	}
	mt.mu.RUnlock()

	c.statsLock.Lock()
	c.globalStats.TotalItems += int64(memStats.RowCount)
	c.globalStats.TotalBytes += totalBytes
	for tag, count := range memStats.TagCounts {
		c.globalStats.TagCounts[tag] += count
	}
	c.statsLock.Unlock()

	// === Step 3: Persist stats to disk ===
	if err := savePersistentStats(c.dataDir, c.globalStats); err != nil {
		log.Printf("Stats persist error: %v", err)
	}

	log.Printf("Flushed to disk: %s (%d rows)", filename, memStats.RowCount)
	return nil
}

// ExecuteScan scans memory and then .shelf files and returns up to
// `limit` rows matching the filter, newest first.
func (c *Catalog) ExecuteScan(filter Filter, limit int) ([]ItemRow, error) {
	// Parse the tag query if present
	var node interface{}
	if filter.Expr != "" {
		parsed, err := ParseTagQuery(filter.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid tag query: %w", err)
		}
		node = parsed
	}

	// 1. Grab current MemTable under lock to avoid inconsistency if swapped
	c.mu.RLock()
	mt := c.mt
	c.mu.RUnlock()

	// 2. Search MemTable first (memory)
	result := mt.SearchWithTagQuery(filter, node, limit)

	if limit >= 0 && len(result) >= limit {
		return result, nil
	}

	// 3. Search persisted files, newest first
	files, err := c.findShelfFiles()
	if err != nil {
		return result, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i] > files[j]
	})

	for _, file := range files {
		if limit >= 0 && len(result) >= limit {
			break
		}

		// File Pruning: Parse timestamps from filename (items_minTs_maxTs.shelf)
		minTs, maxTs, err := parseTsFromFilename(file)
		if err == nil {
			if filter.MinTime > 0 && maxTs < filter.MinTime {
				continue // File is too old
			}
			if filter.MaxTime > 0 && minTs > filter.MaxTime {
				continue // File is too new
			}
		}

		rows, err := c.readerFunc(file, filter)
		if err != nil {
			// Log error but continue with other files
			continue
		}

		// Apply the tag query to disk results
		if node != nil {
			filteredRows := make([]ItemRow, 0, len(rows))
			for i := range rows {
				if MatchTagQuery(node, &rows[i]) {
					filteredRows = append(filteredRows, rows[i])
				}
			}
			rows = filteredRows
		}

		// Append rows up to limit
		if limit < 0 {
			result = append(result, rows...)
			continue
		}
		remaining := limit - len(result)
		if len(rows) <= remaining {
			result = append(result, rows...)
		} else {
			result = append(result, rows[:remaining]...)
		}
	}

	return result, nil
}

// DuplicateGroup is a set of items sharing the same normalized title.
type DuplicateGroup struct {
	Title string    `json:"title"`
	Items []ItemRow `json:"items"`
}

// FindDuplicateTitles scans memory and disk for items whose titles
// collide under case-insensitive comparison.
func (c *Catalog) FindDuplicateTitles() ([]DuplicateGroup, error) {
	rows, err := c.ExecuteScan(Filter{}, -1)
	if err != nil {
		return nil, err
	}

	byTitle := make(map[string][]ItemRow)
	for _, row := range rows {
		key := strings.ToLower(strings.TrimSpace(row.Title))
		if key == "" {
			continue
		}
		byTitle[key] = append(byTitle[key], row)
	}

	var groups []DuplicateGroup
	for key, items := range byTitle {
		if len(items) > 1 {
			groups = append(groups, DuplicateGroup{Title: key, Items: items})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Title < groups[j].Title
	})

	return groups, nil
}

// findShelfFiles returns all .shelf files in the data directory.
func (c *Catalog) findShelfFiles() ([]string, error) {
	var files []string

	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return files, nil // Empty result if dir doesn't exist
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".shelf") {
			files = append(files, filepath.Join(c.dataDir, entry.Name()))
		}
	}

	return files, nil
}

// parseTsFromFilename extracts min and max timestamps from a snapshot filename.
func parseTsFromFilename(filename string) (int64, int64, error) {
	base := filepath.Base(filename)
	if !strings.HasPrefix(base, "items_") || !strings.HasSuffix(base, ".shelf") {
		return 0, 0, fmt.Errorf("invalid format")
	}
	content := strings.TrimSuffix(strings.TrimPrefix(base, "items_"), ".shelf")
	parts := strings.Split(content, "_")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid parts")
	}
	minTs, err1 := strconv.ParseInt(parts[0], 10, 64)
	maxTs, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("invalid timestamps")
	}
	return minTs, maxTs, nil
}
