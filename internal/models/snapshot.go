package models

// Snapshot is the parsed content of one CSV snapshot file.
type Snapshot struct {
	Path    string
	Records []Record
	// Skipped counts malformed data rows left out of Records.
	Skipped int
}
