// Package xerrors 定义带分类、业务码与调用栈的错误。分类决定 HTTP 状态码，
// 业务码原样写入响应的 code 字段。
package xerrors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType 错误分类
type ErrorType uint

const (
	ErrUnknown ErrorType = iota
	ErrInternal
	ErrInvalidArg
	ErrNotFound
	ErrAlreadyExists
	ErrUnavailable
	ErrLimitExceeded
	ErrNumeric
)

type kind struct {
	name   string
	status int
}

var kinds = map[ErrorType]kind{
	ErrUnknown:       {"Unknown", http.StatusInternalServerError},
	ErrInternal:      {"Internal", http.StatusInternalServerError},
	ErrInvalidArg:    {"InvalidArg", http.StatusBadRequest},
	ErrNotFound:      {"NotFound", http.StatusNotFound},
	ErrAlreadyExists: {"AlreadyExists", http.StatusConflict},
	ErrUnavailable:   {"Unavailable", http.StatusServiceUnavailable},
	ErrLimitExceeded: {"LimitExceeded", http.StatusTooManyRequests},
	// 数值类错误大多源于输入落在模型定义域之外
	ErrNumeric: {"Numeric", http.StatusBadRequest},
}

func (t ErrorType) String() string {
	if k, ok := kinds[t]; ok {
		return k.name
	}
	return kinds[ErrUnknown].name
}

// Error 业务错误。Message 面向调用方，Detail 与 Context 用于排查。
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Detail  string         `json:"detail"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`

	pcs []uintptr
}

const maxStackDepth = 10

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)", e.Message, e.Code)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 以分类与业务码判等，派生出的错误仍能匹配原哨兵。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Type == t.Type && e.Code == t.Code
}

// HTTPStatus 分类对应的 HTTP 状态码.
func (e *Error) HTTPStatus() int {
	if k, ok := kinds[e.Type]; ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// Stack 创建处的调用栈，形如 file:line (func).
func (e *Error) Stack() []string {
	if len(e.pcs) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.pcs))
	frames := runtime.CallersFrames(e.pcs)
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s:%d (%s)", f.File, f.Line, f.Function))
		if !more {
			return out
		}
	}
}

// New 创建错误并记录调用栈.
func New(errType ErrorType, code int, message, detail string, cause error) *Error {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2, pcs)
	return &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
		pcs:     pcs[:n],
	}
}

// derive 复制一份再修改，哨兵错误本身保持不变.
func (e *Error) derive(edit func(*Error)) *Error {
	c := *e
	c.Context = maps.Clone(e.Context)
	edit(&c)
	return &c
}

// WithContext 附加一个定位字段，如合约或快照 ID.
func (e *Error) WithContext(key string, value any) *Error {
	return e.derive(func(c *Error) {
		if c.Context == nil {
			c.Context = make(map[string]any, 1)
		}
		c.Context[key] = value
	})
}

func (e *Error) WithDetail(format string, args ...any) *Error {
	return e.derive(func(c *Error) { c.Detail = fmt.Sprintf(format, args...) })
}

func (e *Error) WithCause(cause error) *Error {
	return e.derive(func(c *Error) { c.Cause = cause })
}

func Internal(msg string, cause error) *Error {
	return New(ErrInternal, http.StatusInternalServerError, msg, "", cause)
}

func InvalidArg(msg string) *Error {
	return New(ErrInvalidArg, http.StatusBadRequest, msg, "", nil)
}

func NotFound(msg string) *Error {
	return New(ErrNotFound, http.StatusNotFound, msg, "", nil)
}

// Wrap 以 msg 包装 err。err 链上已有 *Error 时沿用其分类与业务码，否则使用 errType。
func Wrap(err error, errType ErrorType, msg string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := FromError(err); ok {
		return e.derive(func(c *Error) {
			c.Message = msg
			c.Cause = err
		})
	}
	return New(errType, int(errType), msg, "", err)
}

func WrapInternal(err error, msg string) *Error {
	return Wrap(err, ErrInternal, msg)
}

// FromError 取错误链上第一个 *Error.
func FromError(err error) (*Error, bool) {
	var e *Error
	if err != nil && errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
