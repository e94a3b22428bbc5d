package models

import "time"

// FileChange is emitted by a watcher each time it observes a new
// modification time on its file.
type FileChange struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	Path       string    `json:"path"`
	ModTime    time.Time `json:"modTime"`
	Size       int64     `json:"size"`
	DetectedAt time.Time `json:"detectedAt"`
	Content    string    `json:"content"`
}
