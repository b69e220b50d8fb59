package engine

import (
	"bytes"
	"io"
)

// lineWriter splits a byte stream into lines and hands each complete
// line to emit. Partial trailing data is buffered until the next write
// or Flush.
type lineWriter struct {
	emit func(line string)
	buf  bytes.Buffer
}

var _ io.Writer = (*lineWriter)(nil)

func newLineWriter(emit func(line string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(data[:i], "\r"))
		w.buf.Next(i + 1)
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}
