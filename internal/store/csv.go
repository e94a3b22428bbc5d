// Package store reads the CSV snapshots kept under the data directory.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
)

// ErrNotFound is returned when a snapshot file does not exist.
var ErrNotFound = errors.New("snapshot file not found")

const utf8BOM = "\ufeff"

// ReadRecords opens the CSV file at path and returns its data rows keyed by
// the header row. A missing file yields an error wrapping ErrNotFound.
func ReadRecords(path string) (models.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Snapshot{Path: path}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return models.Snapshot{Path: path}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	snap, err := Decode(f)
	snap.Path = path
	if err != nil {
		return snap, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return snap, nil
}

// Decode parses CSV from r. The first row is the header. Data rows whose
// field count differs from the header, that contain invalid UTF-8, or that
// fail to parse are skipped and counted in Snapshot.Skipped.
// Errors from r itself abort the read.
func Decode(r io.Reader) (models.Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	snap := models.Snapshot{Records: make([]models.Record, 0)}

	header, err := cr.Read()
	if err == io.EOF {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				snap.Skipped++
				continue
			}
			return snap, err
		}
		if len(row) != len(header) || !validUTF8(row) {
			snap.Skipped++
			continue
		}
		rec := models.NewRecord()
		for i, col := range header {
			rec.Set(col, row[i])
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}

func validUTF8(row []string) bool {
	for _, field := range row {
		if !utf8.ValidString(field) {
			return false
		}
	}
	return true
}
