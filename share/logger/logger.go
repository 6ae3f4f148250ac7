package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	LogLevelError LogLevel = 0
	LogLevelInfo  LogLevel = 1
	LogLevelDebug LogLevel = 2
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	case LogLevelError:
		return "error"
	default:
		return ""
	}
}

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelDebug:
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func ParseLogLevel(str string) (LogLevel, error) {
	var m = map[string]LogLevel{
		"error": LogLevelError,
		"info":  LogLevelInfo,
		"debug": LogLevelDebug,
	}
	if result, ok := m[str]; ok {
		return result, nil
	}
	return LogLevelError, fmt.Errorf("invalid log level: %q", str)
}

// LogOutput is where log lines go: a file when a path is configured, stdout otherwise.
type LogOutput struct {
	File     *os.File
	filePath string
}

func NewLogOutput(filePath string) LogOutput {
	return LogOutput{
		filePath: filePath,
	}
}

func (o *LogOutput) Start() error {
	if o.filePath == "" {
		o.File = os.Stdout
		return nil
	}

	var err error
	o.File, err = os.OpenFile(o.filePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("can't open log file %s: %s", o.filePath, err)
	}
	return nil
}

func (o *LogOutput) Shutdown() {
	if o.File != nil && o.File != os.Stdout {
		_ = o.File.Close()
	}
}

func (o LogOutput) writer() io.Writer {
	if o.File == nil {
		return os.Stdout
	}
	return o.File
}

type Logger struct {
	prefix string
	logger *logrus.Logger
	output LogOutput
	Level  LogLevel
}

func NewLogger(prefix string, output LogOutput, level LogLevel) *Logger {
	l := logrus.New()
	l.SetOutput(output.writer())
	l.SetLevel(level.logrusLevel())
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	return &Logger{
		prefix: prefix,
		logger: l,
		output: output,
		Level:  level,
	}
}

func (l *Logger) Errorf(f string, args ...interface{}) {
	l.Logf(LogLevelError, f, args...)
}

func (l *Logger) Infof(f string, args ...interface{}) {
	l.Logf(LogLevelInfo, f, args...)
}

func (l *Logger) Debugf(f string, args ...interface{}) {
	l.Logf(LogLevelDebug, f, args...)
}

func (l *Logger) Logf(severity LogLevel, f string, args ...interface{}) {
	if l.Level < severity {
		return
	}
	l.logger.Logf(severity.logrusLevel(), l.prefix+": "+f, args...)
}

// Fork returns a child logger writing to the same output. The parent prefix is kept in front.
func (l *Logger) Fork(prefix string, args ...interface{}) *Logger {
	args = append([]interface{}{l.prefix}, args...)
	return &Logger{
		prefix: fmt.Sprintf("%s: "+prefix, args...),
		logger: l.logger,
		output: l.output,
		Level:  l.Level,
	}
}

func (l *Logger) Prefix() string {
	return l.prefix
}

// Writer exposes the underlying output, for middleware that logs on its own.
func (l *Logger) Writer() io.Writer {
	return l.output.writer()
}

// Discard is a logger that drops everything. Tests use it when output is noise.
func Discard() *Logger {
	l := NewLogger("discard", LogOutput{}, LogLevelError)
	l.logger.SetOutput(io.Discard)
	return l
}
