package notify

import (
	"encoding/json"
	"time"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

const PayloadVersion = 1

type Kind string

const (
	KindReminder Kind = "reminder"
	KindOverdue  Kind = "overdue"
)

// Payload travels with a scheduled notification so the fired alarm can be
// traced back to its task and occurrence.
type Payload struct {
	V            int       `json:"v"`
	TaskID       string    `json:"taskId"`
	Kind         Kind      `json:"kind"`
	OccurrenceAt time.Time `json:"occurrenceAt"`
	LeadMinutes  int       `json:"leadMinutes,omitempty"`
}

func (p Payload) Encode() ([]byte, error) {
	if p.V == 0 {
		p.V = PayloadVersion
	}
	return json.Marshal(p)
}

func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, apperr.Wrap(apperr.KindParse, "decode payload", err)
	}
	switch {
	case p.V != PayloadVersion:
		return Payload{}, apperr.Newf(apperr.KindValidation, "decode payload", "unsupported version %d", p.V)
	case p.TaskID == "":
		return Payload{}, apperr.New(apperr.KindValidation, "decode payload", "missing taskId")
	case p.Kind != KindReminder && p.Kind != KindOverdue:
		return Payload{}, apperr.Newf(apperr.KindValidation, "decode payload", "unknown kind %q", p.Kind)
	case p.OccurrenceAt.IsZero():
		return Payload{}, apperr.New(apperr.KindValidation, "decode payload", "missing occurrenceAt")
	}
	return p, nil
}
