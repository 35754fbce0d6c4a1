package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/model"
)

const FormatVersion = 1

type Metadata struct {
	ExportedAt string `json:"exportedAt"`
	Version    int    `json:"version"`
	TaskCount  int    `json:"taskCount"`
}

type envelope struct {
	Metadata Metadata          `json:"metadata"`
	Tasks    []json.RawMessage `json:"tasks"`
}

// RecordError describes one task record that could not be imported.
type RecordError struct {
	Index int
	ID    string
	Err   error
}

func (e RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

type ImportResult struct {
	Metadata Metadata
	Tasks    []model.Task
	Errors   []RecordError
}

// Export writes live tasks, ordered by id, into a versioned envelope.
// Tombstones are not exported.
func Export(tasks []model.Task, now time.Time) ([]byte, error) {
	live := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Deleted {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })

	env := envelope{
		Metadata: Metadata{
			ExportedAt: model.FormatTimestamp(now),
			Version:    FormatVersion,
			TaskCount:  len(live),
		},
		Tasks: make([]json.RawMessage, 0, len(live)),
	}
	for _, t := range live {
		raw, err := model.EncodeTask(t)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", t.ID, err)
		}
		env.Tasks = append(env.Tasks, raw)
	}
	return json.MarshalIndent(env, "", "  ")
}

// Decode reads an export. A bare JSON array of tasks is accepted as a file
// without metadata. Records that fail to decode are reported in Errors and
// skipped; only an unreadable envelope fails the call.
func Decode(data []byte) (ImportResult, error) {
	trimmed := bytes.TrimSpace(data)
	if !gjson.ValidBytes(trimmed) {
		return ImportResult{}, apperr.New(apperr.KindParse, "import", "file is not valid JSON")
	}

	var env envelope
	switch gjson.ParseBytes(trimmed).Type {
	case gjson.JSON:
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &env.Tasks); err != nil {
				return ImportResult{}, apperr.Wrap(apperr.KindParse, "import", err)
			}
			env.Metadata.Version = FormatVersion
			break
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return ImportResult{}, apperr.Wrap(apperr.KindParse, "import", err)
		}
	default:
		return ImportResult{}, apperr.New(apperr.KindParse, "import", "expected an object or an array")
	}

	if env.Metadata.Version == 0 {
		env.Metadata.Version = FormatVersion
	}
	if env.Metadata.Version > FormatVersion {
		return ImportResult{}, apperr.Newf(apperr.KindValidation, "import",
			"format version %d is newer than supported version %d", env.Metadata.Version, FormatVersion)
	}

	result := ImportResult{Metadata: env.Metadata, Tasks: make([]model.Task, 0, len(env.Tasks))}
	for i, raw := range env.Tasks {
		task, err := model.DecodeTask(raw)
		if err != nil {
			result.Errors = append(result.Errors, RecordError{
				Index: i,
				ID:    gjson.GetBytes(raw, "id").String(),
				Err:   err,
			})
			continue
		}
		result.Tasks = append(result.Tasks, task)
	}
	return result, nil
}
