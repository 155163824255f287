package wear

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ScoreUpdatePath is the wearable data path score commands are written to
	ScoreUpdatePath = "/score_update"

	// DefaultSubjectPrefix is the NATS prefix wearable data paths are mapped under
	DefaultSubjectPrefix = "scorelink.wear"
)

// Record is one wearable data item. Timestamp only makes every write distinct so the
// sync layer never collapses two identical presses into one.
type Record struct {
	Command   string `json:"command"`
	Timestamp int64  `json:"timestamp"`
}

// SubjectForPath maps a data path such as "/score_update" onto a NATS subject
func SubjectForPath(prefix, path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return prefix
	}
	return prefix + "." + strings.ReplaceAll(trimmed, "/", ".")
}

// DecodeRecord parses a record from its JSON form
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal wear record: %w", err)
	}
	return rec, nil
}
