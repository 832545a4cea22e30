package gateway

import (
	"errors"
	"fmt"
)

// Code - дискриминант ошибки движка.
type Code string

// Коды ошибок движка.
const (
	CodeNotFound      Code = "not_found"
	CodeAlreadyExists Code = "already_exists"
	CodeInvalidName   Code = "invalid_name"
	CodeKeyMismatch   Code = "key_mismatch"
	CodeWeakKey       Code = "weak_key"
	CodeSameKey       Code = "same_key"
	CodeWrongKey      Code = "wrong_key"
	CodeInUse         Code = "in_use"
	CodeEntryNotFound Code = "entry_not_found"
	CodeIO            Code = "io"
	CodeInternal      Code = "internal"
)

// MsgWrongKey - единое сообщение при неверном мастер-ключе.
// Не содержит ни ключа, ни подробностей расшифровки.
const MsgWrongKey = "неверный мастер-ключ"

// Error - структурированная ошибка движка: код и сообщение для отображения.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf создает ошибку движка с форматированным сообщением.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf извлекает код из цепочки ошибок.
// Для ошибок, не пришедших от движка, возвращает CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return CodeInternal
}
