package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
)

type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogError
)

var logLevelPrefix = map[LogLevel]string{
	LogDebug: "DEBUG",
	LogInfo:  "INFO",
	LogError: "ERROR",
}

func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogDebug
	case "error":
		return LogError
	default:
		return LogInfo
	}
}

type Logger interface {
	Printf(level LogLevel, format string, a ...interface{})
	Debugf(format string, a ...interface{})
	Infof(format string, a ...interface{})
	Errorf(format string, a ...interface{})
}

type Config struct {
	Logfile string
	MaxSize int
	MaxAge  int
	Level   LogLevel
}

// StdLogger writes leveled lines to stdout, or to a rotating file when
// a log file is configured.
type StdLogger struct {
	mu     sync.Mutex
	level  LogLevel
	out    *log.Logger
	closer io.Closer
}

func New(c Config) *StdLogger {
	var w io.Writer = os.Stdout
	var closer io.Closer
	if c.Logfile != "" {
		lj := &lumberjack.Logger{
			Filename: c.Logfile,
			MaxSize:  c.MaxSize, // megabytes
			MaxAge:   c.MaxAge,  // days
		}
		w, closer = lj, lj
	}
	return &StdLogger{
		level:  c.Level,
		out:    log.New(w, "", log.LstdFlags),
		closer: closer,
	}
}

func (l *StdLogger) Printf(level LogLevel, format string, a ...interface{}) {
	l.mu.Lock()
	min := l.level
	l.mu.Unlock()
	if level < min {
		return
	}
	l.out.Println(logLevelPrefix[level] + ": " + fmt.Sprintf(format, a...))
}

func (l *StdLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}

func (l *StdLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}

func (l *StdLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

func (l *StdLogger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *StdLogger) GetLogLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Close releases the log file, if any.
func (l *StdLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// NullLogger discards everything.
type NullLogger struct{}

func (NullLogger) Printf(level LogLevel, format string, a ...interface{}) {}
func (NullLogger) Debugf(format string, a ...interface{})                 {}
func (NullLogger) Infof(format string, a ...interface{})                  {}
func (NullLogger) Errorf(format string, a ...interface{})                 {}
