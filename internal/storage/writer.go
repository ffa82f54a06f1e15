package storage

import (
	"bytes"
	"encoding/binary"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/tagmarks/tagmarks/internal/engine"
)

// Shelf file header
var MagicHeader = []byte("TAGSHLF1")

// tagSep joins a row's tags into a single column value. Tags are plain
// labels; control characters never appear in them.
const tagSep = "\x1f"

type ShelfWriter struct {
	encoder *zstd.Encoder
}

func NewShelfWriter() (*ShelfWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &ShelfWriter{encoder: enc}, nil
}

// WriteSnapshot writes the MemTable to a .shelf file.
func (sw *ShelfWriter) WriteSnapshot(filename string, mt *engine.MemTable) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	// 1. Write Header
	if _, err := f.Write(MagicHeader); err != nil {
		return err
	}

	// 2. Prepare Data
	createdData := mt.CreatedCol
	idData := mt.IDCol
	titleData := mt.TitleCol
	bodyData := mt.BodyCol
	tagsData := mt.TagsCol

	rowCount := uint32(len(createdData))
	if rowCount == 0 {
		// Header + Footer only.
		return sw.writeFooter(f, 0, 0, 0)
	}

	minTs := createdData[0]
	maxTs := createdData[rowCount-1]

	// 3. Compress and Write Columns

	// CreatedAt (Int64)
	if err := sw.writeInt64Col(f, createdData); err != nil {
		return err
	}

	// ID (String)
	if err := sw.writeStringCol(f, idData); err != nil {
		return err
	}

	// Title (String)
	if err := sw.writeStringCol(f, titleData); err != nil {
		return err
	}

	// Body (String)
	if err := sw.writeStringCol(f, bodyData); err != nil {
		return err
	}

	// Tags (String, joined per row)
	joined := make([]string, len(tagsData))
	for i, tags := range tagsData {
		joined[i] = strings.Join(tags, tagSep)
	}
	if err := sw.writeStringCol(f, joined); err != nil {
		return err
	}

	// 4. Footer
	return sw.writeFooter(f, rowCount, minTs, maxTs)
}

func (sw *ShelfWriter) writeInt64Col(f *os.File, data []int64) error {
	buf := new(bytes.Buffer)
	// Serialize: Just raw bytes
	for _, v := range data {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return sw.compressAndWrite(f, buf.Bytes())
}

func (sw *ShelfWriter) writeStringCol(f *os.File, data []string) error {
	buf := new(bytes.Buffer)
	// Serialize: [Len uint32][Bytes]...
	for _, s := range data {
		b := []byte(s)
		binary.Write(buf, binary.LittleEndian, uint32(len(b)))
		buf.Write(b)
	}
	return sw.compressAndWrite(f, buf.Bytes())
}

func (sw *ShelfWriter) compressAndWrite(f *os.File, raw []byte) error {
	compressed := sw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	// Write Compressed Size (uint32)
	size := uint32(len(compressed))
	if err := binary.Write(f, binary.LittleEndian, size); err != nil {
		return err
	}

	// Write Data
	_, err := f.Write(compressed)
	return err
}

func (sw *ShelfWriter) writeFooter(f *os.File, rowCount uint32, minTs, maxTs int64) error {
	// RowCount (4) + MinTs (8) + MaxTs (8)
	if err := binary.Write(f, binary.LittleEndian, rowCount); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, minTs); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, maxTs); err != nil {
		return err
	}
	return nil
}
