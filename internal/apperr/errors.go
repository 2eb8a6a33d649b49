// Package apperr содержит таксономию ошибок ядра.
//
// Сервисы и репозитории оборачивают эти значения через fmt.Errorf("...: %w", ...),
// вызывающая сторона разбирает их через errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound - нет занятия, абонемента, пакета часов или пользователя
	ErrNotFound = errors.New("not found")
	// ErrPreconditionFailed - у пользователя нет активного членства в клубе
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrInvalidArgument - некорректная сумма, пустое обязательное поле шаблона
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState - нет оставшихся занятий/часов, дубль активного абонемента
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict - проигрыш оптимистичной блокировки или гонка при списании.
	// Вызывающий должен повторить операцию.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientBalance - частный случай ErrInvalidState для кредитного регистра.
	ErrInsufficientBalance = &kindError{msg: "insufficient balance", kind: ErrInvalidState}
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// IsRetryable сообщает, имеет ли смысл повторить вызов.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Kind возвращает одну из базовых ошибок таксономии или nil, если err к ней не сводится.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrPreconditionFailed, ErrInvalidArgument, ErrInvalidState, ErrConflict} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
