package errdef

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeFilesystem Code = "filesystem"
	CodeParse      Code = "parse"
	CodeValidation Code = "validation"
	CodeSnapshot   Code = "snapshot"
	CodeScript     Code = "script"
	CodeHistory    Code = "history"
)

type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
		}
		return e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Cause: err}
}

// CodeOf walks the error chain and returns the first typed code it finds.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return CodeUnknown
}

// Message returns the outermost annotated message without the cause chain.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Msg != "" {
		return typed.Msg
	}
	return err.Error()
}
