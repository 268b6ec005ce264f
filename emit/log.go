package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes events to an io.Writer, one per line, either as
// key=value text or as JSON (JSONL when batched).
type LogEmitter struct {
	w    io.Writer
	json bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to os.Stdout.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{w: w, json: jsonMode}
}

func (l *LogEmitter) Emit(e Event) {
	if l.json {
		l.emitJSON(e)
	} else {
		l.emitText(e)
	}
}

func (l *LogEmitter) emitJSON(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		_, _ = fmt.Fprintf(l.w, "{\"error\":\"emit: marshal failed: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.w, "%s\n", data)
}

func (l *LogEmitter) emitText(e Event) {
	_, _ = fmt.Fprintf(l.w, "[%s] subsystem=%s key=%s version=%d", e.Kind, e.Subsystem, e.Key, e.Version)
	if e.Msg != "" {
		_, _ = fmt.Fprintf(l.w, " msg=%q", e.Msg)
	}
	if len(e.Meta) > 0 {
		if metaJSON, err := json.Marshal(e.Meta); err == nil {
			_, _ = fmt.Fprintf(l.w, " meta=%s", metaJSON)
		}
	}
	_, _ = fmt.Fprint(l.w, "\n")
}

func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously with no internal
// buffer. Wrap w in a bufio.Writer and flush that directly if needed.
func (l *LogEmitter) Flush(context.Context) error { return nil }
