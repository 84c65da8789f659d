package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format of every timestamp in stored documents.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp is a time.Time persisted in TimestampLayout, local time.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Second)}
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalCSV is used by gocsv when exporting transaction logs.
func (t Timestamp) MarshalCSV() (string, error) {
	return t.String(), nil
}
