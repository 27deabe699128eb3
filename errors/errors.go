package errors

import (
	errs "errors"
	"fmt"
	"runtime"
	"strings"
)

type ErrorLevel string

func (e ErrorLevel) String() string {
	return string(e)
}

const (
	ERR_CONFIGURATION  ErrorLevel = "configuration"
	ERR_CALLBACK       ErrorLevel = "callback"
	ERR_NOT_FOUND      ErrorLevel = "not_found"
	ERR_INFRASTRUCTURE ErrorLevel = "infrastructure"
	ERR_VALIDATION     ErrorLevel = "validation"
	ERR_AUTH           ErrorLevel = "auth"
	ERR_PERMISSION     ErrorLevel = "permission"
	ERR_UNKNOWN        ErrorLevel = "unknown"
)

type ExtendError struct {
	Level      ErrorLevel     `json:"level"`
	Err        error          `json:"error"`
	Code       string         `json:"code,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StackTrace string         `json:"-"`
}

func (e *ExtendError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	msg := e.Err.Error()
	if e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	return msg
}

func (e *ExtendError) Unwrap() error {
	return e.Err
}

func (e *ExtendError) WithCode(code string) *ExtendError {
	e.Code = code
	return e
}

func (e *ExtendError) WithMetadata(key string, value any) *ExtendError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

func New(message string) error {
	return errs.New(message)
}

// Is reports whether err matches target. The argument order follows the rest of this package.
func Is(target, err error) bool {
	return errs.Is(err, target)
}

func IsExtendError(err error) bool {
	var extendErr *ExtendError
	return errs.As(err, &extendErr)
}

func As(err error, target interface{}) bool {
	return errs.As(err, target)
}

func captureStackTrace() string {
	var sb strings.Builder
	// Skip 3 frames: captureStackTrace, wrap, and the caller of wrap
	for i := 3; i < 15; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "%s:%d\n", file, line)
	}
	return sb.String()
}

func wrap(err error, level ErrorLevel) *ExtendError {
	var extendErr *ExtendError
	if errs.As(err, &extendErr) && extendErr == err && !reclassifies(extendErr, level) {
		// Already classified; keep the original level, code and metadata.
		return extendErr
	}
	return &ExtendError{
		Level:      level,
		Err:        err,
		StackTrace: captureStackTrace(),
	}
}

// reclassifies reports whether wrapping existing at level needs a new layer. Callback
// failures are always reported at the callback level, whatever the callback returned.
func reclassifies(existing *ExtendError, level ErrorLevel) bool {
	return level == ERR_CALLBACK && existing.Level != ERR_CALLBACK
}

func ConfigurationError(err error) *ExtendError {
	return wrap(err, ERR_CONFIGURATION)
}

func CallbackError(err error) *ExtendError {
	return wrap(err, ERR_CALLBACK)
}

func NotFoundError(err error) *ExtendError {
	return wrap(err, ERR_NOT_FOUND)
}

func InfraError(err error) *ExtendError {
	return wrap(err, ERR_INFRASTRUCTURE)
}

func ValidationError(err error) *ExtendError {
	return wrap(err, ERR_VALIDATION)
}

func AuthError(err error) *ExtendError {
	return wrap(err, ERR_AUTH)
}

func PermissionError(err error) *ExtendError {
	return wrap(err, ERR_PERMISSION)
}

func UnknownError(err error) *ExtendError {
	return wrap(err, ERR_UNKNOWN)
}

func getErrorLevel(err *ExtendError) ErrorLevel {
	if err == nil {
		return ERR_UNKNOWN
	}
	return err.Level
}

// GetLevel returns the level of the outermost ExtendError in err's chain.
func GetLevel(err error) ErrorLevel {
	var extendErr *ExtendError
	if errs.As(err, &extendErr) {
		return getErrorLevel(extendErr)
	}
	return ERR_UNKNOWN
}

func IsConfigurationError(err *ExtendError) bool {
	return getErrorLevel(err) == ERR_CONFIGURATION
}
func IsCallbackError(err *ExtendError) bool {
	return getErrorLevel(err) == ERR_CALLBACK
}
func IsNotFoundError(err *ExtendError) bool {
	return getErrorLevel(err) == ERR_NOT_FOUND
}
func IsInfraError(err *ExtendError) bool {
	return getErrorLevel(err) == ERR_INFRASTRUCTURE
}
func IsValidationError(err *ExtendError) bool {
	return getErrorLevel(err) == ERR_VALIDATION
}
func IsAuthError(err *ExtendError) bool {
	return getErrorLevel(err) == ERR_AUTH
}
func IsPermissionError(err *ExtendError) bool {
	return getErrorLevel(err) == ERR_PERMISSION
}
func IsUnknownError(err *ExtendError) bool {
	return getErrorLevel(err) == ERR_UNKNOWN
}
