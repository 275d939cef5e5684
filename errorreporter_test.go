package warden

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestErrorReporterFunc(t *testing.T) {
	var gotErr error
	var gotFields map[string]any
	reporter := ErrorReporterFunc(func(_ context.Context, err error, fields map[string]any) {
		gotErr = err
		gotFields = fields
	})

	want := errors.New("invalid rule")
	reporter.Report(context.Background(), want, map[string]any{"subject": "visitor"})
	if !errors.Is(gotErr, want) {
		t.Errorf("err = %v, want %v", gotErr, want)
	}
	if gotFields["subject"] != "visitor" {
		t.Errorf("fields = %v", gotFields)
	}

	var nilFunc ErrorReporterFunc
	nilFunc.Report(context.Background(), want, nil)
}

func TestNoopErrorReporter(t *testing.T) {
	NoopErrorReporter{}.Report(context.Background(), errors.New("dropped"), nil)
}

func TestLogErrorReporter(t *testing.T) {
	tests := []struct {
		name      string
		logger    bool
		err       error
		requestID string
		wantEntry bool
	}{
		{name: "reports", logger: true, err: errors.New("store down"), requestID: "req-9", wantEntry: true},
		{name: "nil error", logger: true},
		{name: "nil logger", err: errors.New("store down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordLogger{}
			reporter := LogErrorReporter{}
			if tt.logger {
				reporter.Logger = log
			}

			ctx := WithRequestID(context.Background(), tt.requestID)
			reporter.Report(ctx, tt.err, map[string]any{"type": "login"})

			if got := len(log.entries) > 0; got != tt.wantEntry {
				t.Fatalf("entry logged = %v, want %v", got, tt.wantEntry)
			}
			if !tt.wantEntry {
				return
			}
			for _, want := range []string{"error reported", "store down", "req-9", "login"} {
				if !log.contains(want) {
					t.Errorf("log entry missing %q: %v", want, log.entries)
				}
			}
		})
	}
}

func TestLogErrorReporterStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	reporter := LogErrorReporter{Logger: newSlogLogger("error", &buf, false)}

	ctx := WithRequestID(context.Background(), "req-3")
	reporter.Report(ctx, errors.New("rule payload is missing"), map[string]any{"feature": "404-redirect"})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %s", len(lines), buf.String())
	}
	entry := lines[0]
	if entry["msg"] != "error reported" || entry["error"] != "rule payload is missing" {
		t.Errorf("entry = %v", entry)
	}
	if entry["request_id"] != "req-3" || entry["feature"] != "404-redirect" {
		t.Errorf("entry = %v", entry)
	}
}
