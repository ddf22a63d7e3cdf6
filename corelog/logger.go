package corelog

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is a logging threshold, ordered from most to least verbose.
type Level uint8

const (
	Debug Level = iota
	Info
	Warning
	Error
	// Silent suppresses all output; used by tests that expect noisy
	// failure paths to run without cluttering test output.
	Silent
)

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	case "silent", "none":
		return Silent, nil
	default:
		return 0, fmt.Errorf("corelog: invalid log level %q, must be one of debug, info, warn, error, silent", s)
	}
}

// Logger formats and writes leveled messages tagged with a package name.
type Logger struct {
	name   string
	level  Level
	writer *log.Logger
}

// New creates a Logger writing to os.Stdout at the given level.
func New(name string, level Level) *Logger {
	return &Logger{
		name:   name,
		level:  level,
		writer: log.New(os.Stdout, "", log.Ldate|log.Ltime),
	}
}

// SetLevel changes the logger's threshold.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level <= Debug {
		l.log("DEBUG", format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level <= Info {
		l.log("INFO", format, args...)
	}
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	if l.level <= Warning {
		l.log("WARN", format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level <= Error {
		l.log("ERROR", format, args...)
	}
}

func (l *Logger) log(levelStr, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.writer.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Named logger registry
// --------------------------------------------------------------------------

var (
	registryMu sync.Mutex
	registry   = map[string]*Logger{}
	globalLvl  = Info
)

// SetGlobalLevel changes the level of every logger already handed out by
// Get, and the level newly created loggers start at.
func SetGlobalLevel(level Level) {
	registryMu.Lock()
	defer registryMu.Unlock()
	globalLvl = level
	for _, l := range registry {
		l.SetLevel(level)
	}
}

// Get returns the named logger, creating it at the current global level on
// first use. Repeated calls with the same name return the same instance.
func Get(name string) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[name]; ok {
		return l
	}
	l := New(name, globalLvl)
	registry[name] = l
	return l
}
