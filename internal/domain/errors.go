package domain

import (
	"errors"
	"fmt"
)

// ErrTerminalExtraction возвращается, когда исчерпаны все звенья цепочки.
var ErrTerminalExtraction = errors.New("все провайдеры извлечения исчерпаны")

// TransientError — сетевой сбой, таймаут, 5xx или rate-limit провайдера.
// Продвигает цепочку дальше и никогда не показывается пользователю напрямую.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: временный сбой: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// SchemaError — провайдер ответил, но ответ не прошёл валидацию схемы.
// Обрабатывается так же, как TransientError: цепочка идёт дальше.
type SchemaError struct {
	Provider string
	Reason   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: ответ не прошёл схему: %s", e.Provider, e.Reason)
}

// AdvancesChain сообщает, должен ли оркестратор перейти к следующему звену.
func AdvancesChain(err error) bool {
	var tr *TransientError
	var sch *SchemaError
	return errors.As(err, &tr) || errors.As(err, &sch)
}
