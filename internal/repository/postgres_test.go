package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

func TestNewPGStore(t *testing.T) {
	assert.NotNil(t, NewPGStore(&pgxpool.Pool{}))
}

func TestMapPGError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation, Message: "duplicate key"}, true},
		{"serialization failure", fmt.Errorf("commit tx: %w", &pgconn.PgError{Code: pgSerializationFailure}), true},
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, true},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapPGError(tt.err)
			assert.Equal(t, tt.conflict, errors.Is(err, domain.ErrConflict))
		})
	}
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(pgx.ErrNoRows, "flight 1"), domain.ErrNotFound)

	boom := errors.New("boom")
	assert.Equal(t, boom, notFound(boom, "flight 1"))
}
