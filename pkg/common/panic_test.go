package common

import (
	"bytes"
	"strings"
	"testing"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "", LogLevelError)

	// Reaching the checks below means the panic was stopped.
	func() {
		defer RecoverPanic(logger)
		panic("relay exploded")
	}()

	if !strings.Contains(buf.String(), "panic recovered: relay exploded") {
		t.Errorf("panic was not logged:\n%s", buf.String())
	}
}

func TestRecoverPanicWithoutPanic(t *testing.T) {
	var result bool
	func() {
		defer func() { result = RecoverPanic(nil) }()
	}()
	if result {
		t.Error("RecoverPanic reported a panic that never happened")
	}
}
