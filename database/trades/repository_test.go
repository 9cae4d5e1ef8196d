package trades

import (
	"errors"
	"fmt"
	"testing"

	"pattern-ledger/database"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "pgx unique violation message",
			err:  errors.New(`ERROR: duplicate key value violates unique constraint "idx_trade_symbol_entry" (SQLSTATE 23505)`),
			want: true,
		},
		{
			name: "sqlstate only",
			err:  errors.New("SQLSTATE 23505"),
			want: true,
		},
		{
			name: "unrelated error",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDuplicateKeyErrorDetection(t *testing.T) {
	base := &database.DuplicateKeyError{Symbol: "AAPL"}
	wrapped := fmt.Errorf("record trade: %w", base)

	if !database.IsDuplicateKey(wrapped) {
		t.Error("expected wrapped DuplicateKeyError to be detected")
	}
	if database.IsDuplicateKey(errors.New("something else")) {
		t.Error("unrelated error misdetected as duplicate key")
	}
}
