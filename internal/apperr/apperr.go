// Package apperr описывает таксономию ошибок движка: неверный ввод, временная и постоянная
// ошибка внешней зависимости, отсутствие доверенных контактов и отсутствие объекта.
package apperr

import (
	"errors"
	"fmt"
)

// Kind - класс ошибки, по которому вызывающая сторона решает, повторять ли вызов
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindTransientDependency Kind = "transient_dependency"
	KindPermanentDependency Kind = "permanent_dependency"
	KindNoContacts          Kind = "no_contacts_configured"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInternal            Kind = "internal"
)

// Error - классифицированная ошибка
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по классу и сообщению, чтобы работали errors.Is с сентинелами
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg && t.Op == "" && t.Err == nil
}

var (
	// ErrNoContactsConfigured - у пользователя нет доверенных контактов, рассылка не начинается
	ErrNoContactsConfigured = &Error{Kind: KindNoContacts, Msg: "no trusted contacts configured"}

	// ErrStoreUnavailable - хранилище недоступно после всех повторных попыток
	ErrStoreUnavailable = &Error{Kind: KindTransientDependency, Msg: "store unavailable"}
)

// InvalidInput создает ошибку неверного ввода
func InvalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

// NotFound создает ошибку отсутствующего объекта
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict - операция уже выполняется или противоречит текущему состоянию
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Transient оборачивает временную ошибку зависимости (таймаут, 5xx, обрыв соединения)
func Transient(op string, err error) error {
	return &Error{Kind: KindTransientDependency, Op: op, Err: err}
}

// Permanent оборачивает постоянную ошибку зависимости (неверный номер, отказ в доступе)
func Permanent(op string, err error) error {
	return &Error{Kind: KindPermanentDependency, Op: op, Err: err}
}

// StoreUnavailable возвращает терминальную ошибку хранилища с причиной
func StoreUnavailable(op string, err error) error {
	return &Error{Kind: KindTransientDependency, Op: op, Msg: ErrStoreUnavailable.Msg, Err: err}
}

// KindOf возвращает класс ошибки; неклассифицированные ошибки считаются внутренними
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransientDependency
}

func IsPermanent(err error) bool {
	return KindOf(err) == KindPermanentDependency
}

func IsInvalidInput(err error) bool {
	return KindOf(err) == KindInvalidInput
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
