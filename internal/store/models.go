package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Actors recorded on mutations and watermarks.
const (
	ActorUser  = "user"
	ActorAgent = "agent"
)

// Project is the versioned root aggregate. Data holds the structured
// phases/tasks payload; entries live in their own table.
type Project struct {
	ProjectID    string          `json:"projectId"`
	Name         string          `json:"name"`
	Version      int             `json:"version"`
	VUser        int             `json:"vUser"`
	VAgent       int             `json:"vAgent"`
	Data         json.RawMessage `json:"data,omitempty"`
	ModifiedBy   string          `json:"modifiedBy"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastModified time.Time       `json:"lastModified"`
}

// Entry is a single node of the hierarchical tree.
type Entry struct {
	ID          int64     `json:"id"`
	ProjectID   string    `json:"projectId"`
	ParentID    *int64    `json:"parentId,omitempty"`
	LocalPath   string    `json:"localPath"`
	EntryType   string    `json:"entryType"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url,omitempty"`
	Checked     bool      `json:"checked"`
	StatusColor string    `json:"statusColor"`
	Version     int       `json:"version"`
	ContextData string    `json:"contextData,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HistoryEntry is one audit row. Every accepted change writes exactly one.
type HistoryEntry struct {
	ID         int64           `json:"id"`
	ProjectID  string          `json:"projectId"`
	Version    int             `json:"version"`
	Device     string          `json:"device"`
	ChangeType string          `json:"changeType"`
	ChangeData json.RawMessage `json:"changeData,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ChangeRecord is what a mutation logs to version_history.
type ChangeRecord struct {
	Type string
	Data json.RawMessage
}

// CommitInfo describes one snapshot commit in the git archive.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConflictError is returned when a gated update carries a stale version.
type ConflictError struct {
	Latest int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: latest is %d", e.Latest)
}

// ErrCycle is returned when a move would make an entry its own ancestor.
var ErrCycle = errors.New("move would create a cycle")
