package storage

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVTimeLayout formats timestamps in exported rows.
const CSVTimeLayout = "2006-01-02 15:04:05"

// CSVHeader is the first row of an export.
var CSVHeader = []string{"id", "timestamp", "to_email", "subject", "status", "error_message"}

// WriteCSV writes entries as CSV with a header row. Timestamps are UTC.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.UTC().Format(CSVTimeLayout),
			e.ToEmail,
			e.Subject,
			string(e.Status),
			e.ErrorMessage,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
