package process

import (
	"bytes"
	"sync"

	"github.com/bft-labs/edgevisor/pkg/log"
)

// maxLine bounds a buffered partial line.
const maxLine = 16 << 10

// lineWriter logs process output one line at a time.
type lineWriter struct {
	logger  log.Logger
	service string
	stage   string
	stream  string

	mu  sync.Mutex
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	fields := []log.Field{
		log.Service(w.service),
		log.String("stage", w.stage),
		log.String("stream", w.stream),
	}
	if w.stream == "stderr" {
		w.logger.Warn(string(line), fields...)
		return
	}
	w.logger.Info(string(line), fields...)
}
