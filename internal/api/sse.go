package api

import (
	"encoding/json"
	"fmt"
	"io"
)

const doneRecord = "data: [DONE]\n\n"

// formatRecord renders one event record: "data: <json>\n\n".
func formatRecord(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out, nil
}

func replyRecord(text string) ([]byte, error) {
	return formatRecord(map[string]string{"reply": text})
}

func errorRecord(message string) ([]byte, error) {
	return formatRecord(map[string]string{"error": message})
}

func writeRecord(w io.Writer, record []byte) error {
	_, err := w.Write(record)
	return err
}

func writeDone(w io.Writer) error {
	_, err := io.WriteString(w, doneRecord)
	return err
}
