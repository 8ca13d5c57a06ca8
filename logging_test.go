package strata

import "testing"

func TestDefaultLoggerDebugToggle(t *testing.T) {
	l := NewDefaultLogger("test", false)
	if l.DebugEnabled() {
		t.Fatal("debug enabled by default")
	}
	l.SetDebug(true)
	if !l.DebugEnabled() {
		t.Fatal("debug toggle did not take")
	}
	l.SetDebug(false)
	if l.DebugEnabled() {
		t.Fatal("debug toggle did not clear")
	}
}

func TestNopLoggerIsSilentAndStateless(t *testing.T) {
	l := NewNopLogger()
	l.SetDebug(true)
	if l.DebugEnabled() {
		t.Fatal("nop logger reported debug enabled")
	}
	// Must not panic regardless of arguments.
	l.Debugf("%d", 1)
	l.Infof("%s", "x")
	l.Warnf("")
	l.Errorf("%v", nil)
}
