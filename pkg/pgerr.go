package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"spectrum-club/internal/apperr"
)

const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Translate приводит ошибки PostgreSQL к таксономии apperr.
// Ошибки без соответствия возвращаются как есть.
func Translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%s: %w", pqErr.Message, errors.Join(apperr.ErrConflict, err))
	case codeCheckViolation:
		return fmt.Errorf("%s: %w", pqErr.Message, errors.Join(apperr.ErrInvalidState, err))
	}
	return err
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
