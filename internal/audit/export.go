package audit

import (
	"encoding/csv"
	"io"
	"time"
)

var csvHeader = []string{"timestamp", "action", "decision", "reason", "actor_id", "actor_email", "file_id", "filename", "ip", "user_agent"}

// WriteCSV streams entries as CSV, newest first as given.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Action),
			string(e.Decision),
			e.Reason,
			deref(e.ActorID),
			deref(e.ActorEmail),
			deref(e.ResourceID),
			deref(e.FileName),
			e.Client.IP,
			e.Client.UserAgent,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
