package logger

import (
	"testing"

	"mailvault/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"warning", false},
		{"error", false},
		{"fatal", false},
		{"disabled", false},
		{"DEBUG", false},
		{"verbose", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	log, err := New(&config.LoggingConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if log == nil {
		t.Fatal("Expected logger, got nil")
	}

	// Field chaining should not panic and should return a new logger
	withFields := log.WithField("a", 1).WithFields(map[string]interface{}{"b": "two"})
	if withFields == nil {
		t.Fatal("Expected chained logger, got nil")
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	if _, err := New(&config.LoggingConfig{Level: "nope"}); err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestTestLoggerCapture(t *testing.T) {
	tl := NewTestLogger()
	tl.Info("backup started")
	tl.WarnWithFields("slow fetch", map[string]interface{}{"message_id": "abc"})

	msgs := tl.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Level != "INFO" {
		t.Errorf("Expected INFO, got %s", msgs[0].Level)
	}
	if !tl.HasMessage("slow fetch") {
		t.Error("Expected captured message 'slow fetch'")
	}

	tl.Reset()
	if len(tl.Messages()) != 0 {
		t.Error("Expected no messages after reset")
	}
}
