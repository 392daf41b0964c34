// Package errors provides categorized errors shared by the PCB agent packages.
//
// Errors are built fluently and remain compatible with the standard library:
//
//	err := errors.New(cause).
//		Component("vision").
//		Category(errors.CategoryBackendUnavailable).
//		Context("backend", "roboflow").
//		Build()
//
//	if errors.Is(err, errors.ErrBackendUnavailable) { ... }
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// ErrorCategory groups errors by the taxonomy the agents and API layer act on.
type ErrorCategory string

const (
	CategoryInputValidation    ErrorCategory = "input-validation"
	CategoryFileNotFound       ErrorCategory = "file-not-found"
	CategoryBackendUnavailable ErrorCategory = "backend-unavailable"
	CategoryUploadFailed       ErrorCategory = "upload-failed"
	CategoryInsertFailed       ErrorCategory = "insert-failed"
	CategoryQueryFailed        ErrorCategory = "query-failed"
	CategoryMissingCredential  ErrorCategory = "missing-credential"
	CategoryProviderError      ErrorCategory = "provider-error"
	CategoryConfiguration      ErrorCategory = "configuration"
	CategoryOrchestration      ErrorCategory = "orchestration"
	CategoryIterationLimit     ErrorCategory = "iteration-limit"
	CategoryGeneric            ErrorCategory = "generic"
)

// Sentinels matched through errors.Is against any EnhancedError of the same category.
var (
	ErrInputValidation    = sentinel(CategoryInputValidation)
	ErrFileNotFound       = sentinel(CategoryFileNotFound)
	ErrBackendUnavailable = sentinel(CategoryBackendUnavailable)
	ErrUploadFailed       = sentinel(CategoryUploadFailed)
	ErrInsertFailed       = sentinel(CategoryInsertFailed)
	ErrQueryFailed        = sentinel(CategoryQueryFailed)
	ErrMissingCredential  = sentinel(CategoryMissingCredential)
	ErrProviderError      = sentinel(CategoryProviderError)
	ErrConfiguration      = sentinel(CategoryConfiguration)
	ErrIterationLimit     = sentinel(CategoryIterationLimit)
)

type categorySentinel struct {
	category ErrorCategory
}

func sentinel(c ErrorCategory) error { return &categorySentinel{category: c} }

func (s *categorySentinel) Error() string { return string(s.category) }

// EnhancedError carries a component, a category and free-form context alongside the cause.
type EnhancedError struct {
	Err       error
	component string
	category  ErrorCategory
	context   map[string]any
	timestamp time.Time
}

func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.category)
	}
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is reports category equality for sentinels and delegates to the wrapped error otherwise.
func (ee *EnhancedError) Is(target error) bool {
	var s *categorySentinel
	if stderrors.As(target, &s) {
		return ee.category == s.category
	}
	return false
}

func (ee *EnhancedError) GetComponent() string { return ee.component }

func (ee *EnhancedError) GetCategory() ErrorCategory { return ee.category }

func (ee *EnhancedError) GetTimestamp() time.Time { return ee.timestamp }

// GetContext returns a copy of the attached context.
func (ee *EnhancedError) GetContext() map[string]any {
	if len(ee.context) == 0 {
		return nil
	}
	return maps.Clone(ee.context)
}

// LogAttrs flattens the error into key/value pairs for slog.
func (ee *EnhancedError) LogAttrs() []any {
	attrs := []any{"error", ee.Error(), "category", string(ee.category)}
	if ee.component != "" {
		attrs = append(attrs, "component", ee.component)
	}
	for k, v := range ee.context {
		attrs = append(attrs, k, v)
	}
	return attrs
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder around err.
func New(err error) *ErrorBuilder {
	if err == nil {
		err = stderrors.New("unknown error")
	}
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf starts a builder around a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = strings.TrimSpace(component)
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build finalizes the error.
func (eb *ErrorBuilder) Build() *EnhancedError {
	return &EnhancedError{
		Err:       eb.err,
		component: eb.component,
		category:  eb.category,
		context:   eb.context,
		timestamp: time.Now(),
	}
}

// CategoryOf returns the category of the first EnhancedError in err's chain.
func CategoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.category
	}
	return CategoryGeneric
}

// Is, As, Unwrap and Join mirror the standard library so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// NewStd creates a plain error, the equivalent of the standard errors.New.
func NewStd(text string) error { return stderrors.New(text) }
