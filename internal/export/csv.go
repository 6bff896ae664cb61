package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// exportCSV flattens the board into one row per task.
func exportCSV(data TemplateData, title string) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Column", "Task", "Description", "Type", "Assignees"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, column := range data.Columns {
		for _, task := range column.Tasks {
			row := []string{
				column.Title,
				task.Title,
				task.Description,
				task.TypeLabel,
				strings.Join(task.Assignees, ", "),
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
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
