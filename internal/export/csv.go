package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// exportCSV renders the entries as a CSV download
func exportCSV(entries []Entry, title string) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "who", "mood", "intensity", "score", "note"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			e.CreatedAt.Format(time.RFC3339),
			e.Owner,
			e.Mood,
			strconv.Itoa(e.Intensity),
			strconv.FormatFloat(e.Score, 'f', 1, 64),
			e.Note,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(title) + ".csv",
		MimeType: "text/csv",
	}, nil
}
