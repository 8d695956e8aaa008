// Package logger provides a process-wide zap logger that can fan out to multiple outputs.
// Init must be called early in the application lifecycle before using other logger functions.
// Functions like AddOutput and SetEnabled will return errors if called before Init.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap logger writing to a mutable set of outputs
type Logger struct {
	mu      sync.Mutex
	outputs []io.Writer
	prefix  string
	enabled bool

	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000)
	})
	return globalBuffer
}

// Init initializes the global logger
func Init(prefix string, writeToStdout bool) {
	once.Do(func() {
		outputs := []io.Writer{}
		if writeToStdout {
			outputs = append(outputs, os.Stdout)
		}
		globalLogger = newLogger(prefix, outputs)
	})
}

func newLogger(prefix string, outputs []io.Writer) *Logger {
	l := &Logger{
		outputs: outputs,
		prefix:  prefix,
		enabled: true,
		level:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encoderConfig.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(fanout{l}), l.level)
	l.sugar = zap.New(core).Sugar()
	return l
}

// fanout writes every encoded entry to all registered outputs.
type fanout struct {
	l *Logger
}

func (f fanout) Write(p []byte) (int, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()

	if !f.l.enabled {
		return len(p), nil
	}
	for _, output := range f.l.outputs {
		output.Write(p)
	}
	return len(p), nil
}

func (f fanout) Sync() error {
	return nil
}

// AddOutput adds an additional output writer (e.g., for TUI log buffer).
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.outputs = append(globalLogger.outputs, w)
	return nil
}

// RemoveOutput removes an output writer.
// Returns an error if called before Init.
func RemoveOutput(w io.Writer) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	newOutputs := []io.Writer{}
	for _, output := range globalLogger.outputs {
		if output != w {
			newOutputs = append(newOutputs, output)
		}
	}
	globalLogger.outputs = newOutputs
	return nil
}

// SetEnabled enables or disables logging.
// Returns an error if called before Init.
func SetEnabled(enabled bool) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.enabled = enabled
	return nil
}

// SetLevel changes the minimum level ("debug", "info", "warn", "error").
func SetLevel(level string) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	return globalLogger.level.UnmarshalText([]byte(level))
}

func sugar() *zap.SugaredLogger {
	if globalLogger == nil {
		// Fallback until Init runs: stderr at info level
		Init("", false)
		globalLogger.mu.Lock()
		if len(globalLogger.outputs) == 0 {
			globalLogger.outputs = append(globalLogger.outputs, os.Stderr)
		}
		globalLogger.mu.Unlock()
	}
	return globalLogger.sugar
}

func format(format string, v ...interface{}) string {
	msg := strings.TrimSuffix(fmt.Sprintf(format, v...), "\n")
	if globalLogger != nil && globalLogger.prefix != "" {
		msg = fmt.Sprintf("[%s] %s", globalLogger.prefix, msg)
	}
	return msg
}

// Printf logs a formatted message at info level
func Printf(f string, v ...interface{}) {
	s := sugar()
	s.Info(format(f, v...))
}

// Info logs an info-level message
func Info(v ...interface{}) {
	Printf("%s", fmt.Sprint(v...))
}

// Warnf logs a warn-level formatted message
func Warnf(f string, v ...interface{}) {
	s := sugar()
	s.Warn(format(f, v...))
}

// Errorf logs an error-level formatted message
func Errorf(f string, v ...interface{}) {
	s := sugar()
	s.Error(format(f, v...))
}

// Debugf logs a debug-level formatted message
func Debugf(f string, v ...interface{}) {
	s := sugar()
	s.Debug(format(f, v...))
}

// Sync flushes buffered entries.
func Sync() error {
	if globalLogger == nil {
		return nil
	}
	return globalLogger.sugar.Sync()
}

// GetGlobalLogger returns the global logger instance (for testing/debugging)
func GetGlobalLogger() *Logger {
	return globalLogger
}
