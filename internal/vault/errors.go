package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maynagashev/pawnvault/internal/gateway"
)

// Виды ошибок ядра. Проверяются через errors.Is.
var (
	ErrValidation   = errors.New("ошибка проверки данных")
	ErrGateway      = errors.New("ошибка бэкенда")
	ErrDesync       = errors.New("список записей устарел")
	ErrBusy         = errors.New("операция уже выполняется")
	ErrInvalidState = errors.New("недопустимое состояние сессии")
)

// ValidationError - ошибка, обнаруженная до обращения к бэкенду.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// GatewayError - отказ бэкенда. Message передается пользователю без изменений.
type GatewayError struct {
	Op      string
	Code    gateway.Code
	Message string
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// DesyncError означает, что изменение применено бэкендом,
// но следующее за ним чтение списка записей не удалось.
// Кэш записей остается прежним до успешного Refresh.
type DesyncError struct {
	Op  string
	Err error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("изменение '%s' сохранено, но список записей не обновлен: %v", e.Op, e.Err)
}

func (e *DesyncError) Is(target error) bool {
	return target == ErrDesync
}

func (e *DesyncError) Unwrap() error {
	return e.Err
}

// BusyError возвращается, когда для той же цели уже выполняется изменение.
type BusyError struct {
	Op string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("операция '%s' отклонена: дождитесь завершения предыдущей", e.Op)
}

func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// InvalidStateError возвращается при обращении к записям заблокированной или закрытой сессии.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("операция '%s' недоступна: хранилище %s", e.Op, e.State)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Kind возвращает вид ошибки ядра (один из Err*) или nil для посторонних ошибок.
// DesyncError оборачивает GatewayError, поэтому проверяется первой.
func Kind(err error) error {
	for _, kind := range []error{ErrDesync, ErrValidation, ErrBusy, ErrInvalidState, ErrGateway} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func validationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// fromGateway приводит ошибку бэкенда к GatewayError.
func fromGateway(op string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return &GatewayError{Op: op, Code: gwErr.Code, Message: gwErr.Message}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{Op: op, Code: gateway.CodeIO, Message: "операция прервана"}
	}
	return &GatewayError{Op: op, Code: gateway.CodeInternal, Message: err.Error()}
}

// callGateway вызывает бэкенд и превращает панику в GatewayError.
func callGateway[T any](op string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Паника при вызове бэкенда", "op", op, "panic_type", fmt.Sprintf("%T", r))
			err = &GatewayError{Op: op, Code: gateway.CodeInternal, Message: "внутренняя ошибка бэкенда"}
		}
	}()
	result, err = fn()
	return result, fromGateway(op, err)
}

// callGatewayErr - вариант callGateway для операций без результата.
func callGatewayErr(op string, fn func() error) error {
	_, err := callGateway(op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
