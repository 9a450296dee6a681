package types

import (
	"errors"
	"fmt"
)

// 核心错误分类，调用方通过 errors.Is 判断
var (
	ErrGenerationFailure           = errors.New("generation failure")
	ErrSessionNotFound             = errors.New("session not found")
	ErrNoProfileText               = errors.New("no profile text")
	ErrDuplicateQuestionUnresolved = errors.New("duplicate question unresolved")
	ErrEvaluationFailure           = errors.New("evaluation failure")
	ErrPersistenceFailure          = errors.New("persistence failure")
	ErrEmbeddingFailure            = errors.New("embedding failure")
	ErrInvalidInput                = errors.New("invalid input")
)

// CoreError 包含操作上下文的错误
type CoreError struct {
	Op        string
	SessionID string
	Kind      error
	Err       error
	Detail    string
}

func (e *CoreError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s (op:%s", msg, e.Op)
		if e.SessionID != "" {
			msg += ", session:" + e.SessionID
		}
		msg += ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 同时暴露错误分类和底层原因
func (e *CoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// 错误构造函数

func NewGenerationError(op string, attempts int, err error) error {
	return &CoreError{
		Op:     op,
		Kind:   ErrGenerationFailure,
		Err:    err,
		Detail: fmt.Sprintf("gave up after %d attempt(s)", attempts),
	}
}

func NewSessionNotFoundError(op, sessionID string) error {
	return &CoreError{Op: op, SessionID: sessionID, Kind: ErrSessionNotFound}
}

func NewNoProfileTextError(op, sessionID string) error {
	return &CoreError{Op: op, SessionID: sessionID, Kind: ErrNoProfileText}
}

func NewDuplicateQuestionError(sessionID string, attempts int) error {
	return &CoreError{
		Op:        "advance",
		SessionID: sessionID,
		Kind:      ErrDuplicateQuestionUnresolved,
		Detail:    fmt.Sprintf("no new question after %d generation(s)", attempts),
	}
}

func NewEvaluationError(sessionID, detail string, err error) error {
	return &CoreError{Op: "evaluate", SessionID: sessionID, Kind: ErrEvaluationFailure, Err: err, Detail: detail}
}

func NewPersistenceError(op, sessionID string, err error) error {
	return &CoreError{Op: op, SessionID: sessionID, Kind: ErrPersistenceFailure, Err: err}
}

func NewEmbeddingError(op string, err error) error {
	return &CoreError{Op: op, Kind: ErrEmbeddingFailure, Err: err}
}

func NewInvalidInputError(op, detail string) error {
	return &CoreError{Op: op, Kind: ErrInvalidInput, Detail: detail}
}
