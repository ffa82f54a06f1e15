package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/tagmarks/tagmarks/internal/engine"
)

var ErrInvalidHeader = errors.New("invalid .shelf file header")

// ItemIterator provides a row-by-row view of items.
type ItemIterator interface {
	Next() bool
	Row() engine.ItemRow
	Error() error
	Close() error
}

type ShelfReader struct {
	decoder *zstd.Decoder
}

func NewShelfReader() (*ShelfReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ShelfReader{decoder: dec}, nil
}

// NewIterator creates a new iterator for a .shelf file with filtering.
func (sr *ShelfReader) NewIterator(filename string, filter engine.Filter) (ItemIterator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	it := &FileIterator{
		reader: sr,
		file:   f,
		filter: filter,
	}

	if err := it.init(); err != nil {
		f.Close()
		return nil, err
	}

	return it, nil
}

type FileIterator struct {
	reader *ShelfReader
	file   *os.File
	filter engine.Filter

	// Columns data
	created []int64
	ids     []string
	titles  []string
	bodies  []string
	tags    [][]string

	rowCount int
	cursor   int
	currRow  engine.ItemRow
	err      error
}

func (it *FileIterator) init() error {
	// 1. Validate Header
	header := make([]byte, 8)
	if _, err := io.ReadFull(it.file, header); err != nil {
		return err
	}
	if !bytes.Equal(header, MagicHeader) {
		return ErrInvalidHeader
	}

	// 2. Read Footer (at end of file)
	// Footer: RowCount(4) + MinTs(8) + MaxTs(8) = 20 bytes
	info, err := it.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < 28 { // Header(8) + Footer(20)
		return errors.New("file too small")
	}

	footer := make([]byte, 20)
	if _, err := it.file.ReadAt(footer, info.Size()-20); err != nil {
		return err
	}

	rowCount := binary.LittleEndian.Uint32(footer[0:4])
	minTs := int64(binary.LittleEndian.Uint64(footer[4:12]))
	maxTs := int64(binary.LittleEndian.Uint64(footer[12:20]))

	it.rowCount = int(rowCount)
	it.cursor = -1

	// File-level filtering based on MinTs/MaxTs
	if rowCount > 0 {
		if it.filter.MinTime > 0 && maxTs < it.filter.MinTime {
			it.rowCount = 0 // Skip entire file
			return nil
		}
		if it.filter.MaxTime > 0 && minTs > it.filter.MaxTime {
			it.rowCount = 0 // Skip entire file
			return nil
		}
	}

	if it.rowCount == 0 {
		return nil
	}

	// 3. Read and decompress all columns. Whole columns are stored as
	// single compressed blocks, so decoding is per file, not per row.
	createdData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.created = bytesToInt64Slice(createdData)

	idData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.ids = bytesToStringSlice(idData)

	titleData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.titles = bytesToStringSlice(titleData)

	bodyData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.bodies = bytesToStringSlice(bodyData)

	tagsData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	joined := bytesToStringSlice(tagsData)
	it.tags = make([][]string, len(joined))
	for i, s := range joined {
		if s == "" {
			continue
		}
		it.tags[i] = strings.Split(s, tagSep)
	}

	// Basic column length validation
	if it.rowCount != len(it.ids) || it.rowCount != len(it.titles) ||
		it.rowCount != len(it.bodies) || it.rowCount != len(it.tags) {
		return errors.New("column length mismatch")
	}

	return nil
}

func (it *FileIterator) Next() bool {
	for {
		it.cursor++
		if it.cursor >= it.rowCount {
			return false
		}

		// Apply filters
		ts := it.created[it.cursor]
		if it.filter.MinTime > 0 && ts < it.filter.MinTime {
			continue
		}
		if it.filter.MaxTime > 0 && ts > it.filter.MaxTime {
			continue
		}

		tags := it.tags[it.cursor]
		if it.filter.Tag != "" && !containsTag(tags, it.filter.Tag) {
			continue
		}

		title := it.titles[it.cursor]
		body := it.bodies[it.cursor]
		if it.filter.Query != "" {
			q := strings.ToLower(it.filter.Query)
			if !strings.Contains(strings.ToLower(title), q) &&
				!strings.Contains(strings.ToLower(body), q) {
				continue
			}
		}

		// Match found
		it.currRow = engine.ItemRow{
			ID:        it.ids[it.cursor],
			CreatedAt: ts,
			Title:     title,
			Body:      body,
			Tags:      tags,
		}
		return true
	}
}

func (it *FileIterator) Row() engine.ItemRow {
	return it.currRow
}

func (it *FileIterator) Error() error {
	return it.err
}

func (it *FileIterator) Close() error {
	return it.file.Close()
}

// ReadSnapshot reads a .shelf file and returns item rows matching the filter.
func (sr *ShelfReader) ReadSnapshot(filename string, filter engine.Filter) ([]engine.ItemRow, error) {
	it, err := sr.NewIterator(filename, filter)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var rows []engine.ItemRow
	for it.Next() {
		rows = append(rows, it.Row())
	}
	return rows, it.Error()
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// readAndDecompress reads a compressed block (size + data) and decompresses it.
func (sr *ShelfReader) readAndDecompress(r io.Reader) ([]byte, error) {
	// Read compressed size (uint32)
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	// Read compressed data
	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}

	// Decompress
	decompressed, err := sr.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}

	return decompressed, nil
}

// bytesToInt64Slice converts a byte slice to []int64 (LittleEndian).
func bytesToInt64Slice(data []byte) []int64 {
	count := len(data) / 8
	result := make([]int64, count)
	buf := bytes.NewReader(data)
	for i := 0; i < count; i++ {
		binary.Read(buf, binary.LittleEndian, &result[i])
	}
	return result
}

// bytesToStringSlice converts a byte slice to []string.
// Format: [Len uint32][Bytes]...
func bytesToStringSlice(data []byte) []string {
	var result []string
	buf := bytes.NewReader(data)

	for buf.Len() > 0 {
		var length uint32
		if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
			break
		}
		strBytes := make([]byte, length)
		if _, err := io.ReadFull(buf, strBytes); err != nil {
			break
		}
		result = append(result, string(strBytes))
	}

	return result
}
