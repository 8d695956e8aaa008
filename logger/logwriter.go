package logger

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"sync"
)

// LogBufferWriter is an io.Writer that writes to the log buffer.
// It understands the console encoder layout "time\tLEVEL\t[source] message".
type LogBufferWriter struct {
	buffer *LogBuffer
	buf    bytes.Buffer
	mu     sync.Mutex
}

var sourceRegex = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)

// NewLogBufferWriter creates a new writer that writes to the log buffer
func NewLogBufferWriter(buffer *LogBuffer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer: buffer,
	}
}

// Write implements io.Writer
func (lw *LogBufferWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Buffer until we get a newline
	lw.buf.Write(p)

	for {
		line, err := lw.buf.ReadString('\n')
		if err == io.EOF {
			// keep the partial line for the next write
			lw.buf.WriteString(line)
			break
		}
		if err != nil {
			return len(p), err
		}

		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			continue
		}

		level, rest := splitEncoded(line)
		source := "system"
		message := rest
		if matches := sourceRegex.FindStringSubmatch(rest); len(matches) == 3 {
			source = matches[1]
			message = matches[2]
		}

		lw.buffer.Add(level, source, message)
	}

	return len(p), nil
}

// splitEncoded drops the timestamp column and returns the level and the message.
func splitEncoded(line string) (string, string) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) < 3 {
		return "", line
	}
	return parts[1], parts[2]
}
