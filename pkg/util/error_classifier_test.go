package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = err
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"json", syntaxErr, false, "json_decode_error"},
		{"no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), false, "not_found"},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, "constraint_violation"},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true, "db_conflict"},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true, "db_connection_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"refused", errors.New("dial tcp: connection refused"), true, "connection_error"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tt.err)
			if retryable != tt.retryable || kind != tt.kind {
				t.Fatalf("IsRetryableError(%v) = (%v, %q), want (%v, %q)", tt.err, retryable, kind, tt.retryable, tt.kind)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	if ShouldRetry(1, 5, false) {
		t.Error("non-retryable error must not retry")
	}
	if !ShouldRetry(4, 5, true) {
		t.Error("attempt 4 of 5 should retry")
	}
	if ShouldRetry(5, 5, true) {
		t.Error("attempt 5 of 5 is the last one")
	}
}

func TestFormatRetryKey(t *testing.T) {
	if got := FormatRetryKey("cascade", "job-1"); got != "milestone:retry:cascade:job-1" {
		t.Fatalf("FormatRetryKey = %q", got)
	}
}
