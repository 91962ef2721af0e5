package logrelay

import (
	"bytes"
	"encoding/json"
)

// Writer tees log lines into the hub as {"type":"log","record":...} frames.
// It never fails so it can sit behind io.MultiWriter next to stdout.
type Writer struct {
	hub *Hub
}

func NewWriter(hub *Hub) *Writer {
	return &Writer{hub: hub}
}

type logFrame struct {
	Type   string `json:"type"`
	Record any    `json:"record"`
}

func (w *Writer) Write(p []byte) (int, error) {
	if w == nil || w.hub == nil {
		return len(p), nil
	}
	line := bytes.TrimSpace(p)
	if len(line) == 0 {
		return len(p), nil
	}

	var record any = string(line)
	if json.Valid(line) {
		record = json.RawMessage(bytes.Clone(line))
	}
	frame, err := json.Marshal(logFrame{Type: EventLog, Record: record})
	if err == nil {
		w.hub.Broadcast(frame)
	}
	return len(p), nil
}
