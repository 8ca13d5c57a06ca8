package strata

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Logger is the director's logging contract. Debug output covers per-region
// scheduling decisions and is off by default.
type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger writes leveled, subsystem-tagged lines to stdout/stderr. The
// debug toggle is atomic: sampler workers and map callbacks log off the frame
// goroutine.
type DefaultLogger struct {
	debug atomic.Bool
	tag   string
	out   *log.Logger
	errs  *log.Logger
}

func NewDefaultLogger(tag string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	l := &DefaultLogger{
		tag:  tag,
		out:  log.New(os.Stdout, "", flags),
		errs: log.New(os.Stderr, "", flags),
	}
	l.debug.Store(debug)
	return l
}

func (l *DefaultLogger) DebugEnabled() bool {
	return l.debug.Load()
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.debug.Store(enabled)
}

func (l *DefaultLogger) emit(dst *log.Logger, level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.tag == "" {
		dst.Printf("%s: %s", level, msg)
		return
	}
	dst.Printf("[%s] %s: %s", l.tag, level, msg)
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.debug.Load() {
		return
	}
	l.emit(l.out, "DEBUG", format, args...)
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.emit(l.out, "INFO", format, args...)
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.emit(l.errs, "WARN", format, args...)
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.emit(l.errs, "ERROR", format, args...)
}

type nopLogger struct{}

func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) DebugEnabled() bool    { return false }
func (nopLogger) SetDebug(bool)         {}
func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
