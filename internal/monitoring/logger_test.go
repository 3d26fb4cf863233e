package monitoring

import (
	"fmt"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var captured []string
	SetLogger(func(format string, v ...interface{}) {
		captured = append(captured, fmt.Sprintf(format, v...))
	})

	Logf("gecko sighted in %s", "Warm Hide")

	if len(captured) != 1 || !strings.Contains(captured[0], "Warm Hide") {
		t.Errorf("Expected one captured line mentioning Warm Hide, got %v", captured)
	}

	// nil installs a no-op that must not call the previous logger
	SetLogger(nil)
	Logf("dropped")
	if len(captured) != 1 {
		t.Errorf("Expected no-op logger to capture nothing, got %v", captured)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("startup check: %s", "ok")
}
