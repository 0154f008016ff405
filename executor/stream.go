// Streaming assembly of the finished task record.
//
// While a model stream is still producing chunks, the recorder encodes
// the final task JSON incrementally through a zstd stream: the task is
// serialized once with stubbed completion fields, the trailing brace is
// cut off, and the completion object is appended chunk by chunk. Memory
// holds only the compressed bytes, never the full completion text.
package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"

	"github.com/itsneelabh/infergate/core"
)

// completionRecorder builds the compressed record of a finished task
// from a stream of completion chunks. Usage:
//
//	rec, _ := newCompletionRecorder(task)
//	for each chunk { rec.Write(chunk) }
//	value, _ := rec.Finish()
//	store.SetRaw(ctx, task.ID, value)
type completionRecorder struct {
	buf    bytes.Buffer
	zw     *zstd.Encoder
	inBody bool // first content chunk seen, reasoning section closed
	usage  *core.Usage
	failed error
}

// newCompletionRecorder seals the task header into the encoder. The
// task must already carry finished status and a finish time; its
// Completion field is ignored (the completion is appended from chunks).
func newCompletionRecorder(task *core.Task) (*completionRecorder, error) {
	header, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize task: %w", err)
	}
	// Drop the trailing '}' so the completion object can be appended.
	header = header[:len(header)-1]

	r := &completionRecorder{}
	r.zw, err = zstd.NewWriter(&r.buf)
	if err != nil {
		return nil, err
	}

	if err := r.write(header); err != nil {
		return nil, err
	}
	if err := r.writeString(`,"completion":{"reasoning_content":"`); err != nil {
		return nil, err
	}
	return r, nil
}

// Write appends one completion chunk. Reasoning content must precede
// regular content within the stream; usage is remembered from the last
// chunk carrying it.
func (r *completionRecorder) Write(chunk core.Completion) error {
	if r.failed != nil {
		return r.failed
	}
	if chunk.ReasoningContent != "" {
		if err := r.writeString(escapeJSONString(chunk.ReasoningContent)); err != nil {
			return err
		}
	}
	if chunk.Content != "" {
		if !r.inBody {
			if err := r.writeString(`","content":"`); err != nil {
				return err
			}
			r.inBody = true
		}
		if err := r.writeString(escapeJSONString(chunk.Content)); err != nil {
			return err
		}
	}
	if chunk.Usage != nil {
		r.usage = chunk.Usage
	}
	return nil
}

// Finish closes the completion object and the zstd frame and returns
// the compressed record.
func (r *completionRecorder) Finish() ([]byte, error) {
	if r.failed != nil {
		return nil, r.failed
	}
	if !r.inBody {
		// Stream ended without content; close the reasoning section the
		// same way so the record stays parseable.
		if err := r.writeString(`","content":"`); err != nil {
			return nil, err
		}
	}
	if err := r.writeString(`","usage":`); err != nil {
		return nil, err
	}
	if r.usage != nil {
		usage, err := json.Marshal(r.usage)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize usage: %w", err)
		}
		if err := r.write(usage); err != nil {
			return nil, err
		}
	} else {
		if err := r.writeString("null"); err != nil {
			return nil, err
		}
	}
	if err := r.writeString("}}"); err != nil {
		return nil, err
	}
	if err := r.zw.Close(); err != nil {
		r.failed = err
		return nil, err
	}
	return r.buf.Bytes(), nil
}

func (r *completionRecorder) write(data []byte) error {
	if _, err := r.zw.Write(data); err != nil {
		r.failed = err
		return err
	}
	return nil
}

func (r *completionRecorder) writeString(s string) error {
	return r.write([]byte(s))
}

// escapeJSONString escapes s for embedding inside a JSON string
// literal. Model chunks routinely carry quotes and newlines, so
// emitting them verbatim would corrupt the record.
func escapeJSONString(s string) string {
	if !needsEscaping(s) {
		return s
	}
	var b bytes.Buffer
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func needsEscaping(s string) bool {
	for i := 0; i < len(s); {
		c := s[i]
		if c < 0x20 || c == '"' || c == '\\' {
			return true
		}
		if c < utf8.RuneSelf {
			i++
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return false
}
