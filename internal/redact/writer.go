package redact

import "io"

// Writer scrubs each write before passing it on. zerolog emits one event per
// Write call, so every log line is redacted as a unit.
type Writer struct {
	out io.Writer
}

// NewWriter wraps out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Write implements io.Writer. It reports len(p) on success so callers never
// see a short write caused by redaction changing the length.
func (w *Writer) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.out, Text(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
