// Package errors provides categorized errors for the offline gateway.
//
// Errors are built with a fluent builder so that every failure carries the
// component that raised it, a category used for degradation decisions, and
// free-form context:
//
//	errors.Newf("store not reachable").
//		Component("datastore").
//		Category(errors.CategoryStoreUnavailable).
//		Context("path", path).
//		Build()
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

// ErrorCategory classifies an error for handling and reporting.
type ErrorCategory string

const (
	CategoryStoreUnavailable   ErrorCategory = "store-unavailable"
	CategoryNetwork            ErrorCategory = "network"
	CategoryMalformedOperation ErrorCategory = "malformed-operation"
	CategoryParse              ErrorCategory = "parse"
	CategoryValidation         ErrorCategory = "validation"
	CategoryDatabase           ErrorCategory = "database"
	CategoryConfiguration      ErrorCategory = "configuration"
	CategoryGeneric            ErrorCategory = "generic"
)

// reportable categories are forwarded to the registered reporter.
var reportable = map[ErrorCategory]bool{
	CategoryStoreUnavailable: true,
	CategoryDatabase:         true,
	CategoryConfiguration:    true,
}

// Reporter receives built errors of reportable categories.
type Reporter func(err *EnhancedError)

var (
	reporterMu sync.RWMutex
	reporter   Reporter
)

// SetReporter registers the hook used for reportable errors. Passing nil disables reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

func currentReporter() Reporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return reporter
}

// EnhancedError is an error with component, category and context attached.
type EnhancedError struct {
	Err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

func (e *EnhancedError) Error() string {
	if len(e.context) == 0 {
		return e.Err.Error()
	}
	keys := make([]string, 0, len(e.context))
	for k := range e.context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.context[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), strings.Join(parts, ", "))
}

func (e *EnhancedError) Unwrap() error { return e.Err }

// Component returns the component that raised the error.
func (e *EnhancedError) Component() string { return e.component }

// Category returns the error category.
func (e *EnhancedError) Category() ErrorCategory { return e.category }

// Context returns a copy of the error context.
func (e *EnhancedError) Context() map[string]any {
	return maps.Clone(e.context)
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err *EnhancedError
}

// New wraps err in a builder. A nil err produces a generic "unknown error".
func New(err error) *ErrorBuilder {
	if err == nil {
		err = stderrors.New("unknown error")
	}
	return &ErrorBuilder{err: &EnhancedError{Err: err, category: CategoryGeneric}}
}

// Newf formats a message and starts a builder.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (b *ErrorBuilder) Component(name string) *ErrorBuilder {
	b.err.component = name
	return b
}

func (b *ErrorBuilder) Category(c ErrorCategory) *ErrorBuilder {
	b.err.category = c
	return b
}

func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.err.context == nil {
		b.err.context = make(map[string]any)
	}
	b.err.context[key] = value
	return b
}

// Build finalizes the error and hands it to the reporter when its category is reportable.
func (b *ErrorBuilder) Build() *EnhancedError {
	if reportable[b.err.category] {
		if r := currentReporter(); r != nil {
			r(b.err)
		}
	}
	return b.err
}

// IsCategory reports whether any EnhancedError in err's chain has the category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	for err != nil {
		if !stderrors.As(err, &ee) {
			return false
		}
		if ee.category == category {
			return true
		}
		err = ee.Err
	}
	return false
}

// Re-exports so callers need a single errors import.
var (
	Is     = stderrors.Is
	As     = stderrors.As
	Unwrap = stderrors.Unwrap
	Join   = stderrors.Join
)

// NewStd creates a plain sentinel error.
func NewStd(text string) error {
	return stderrors.New(text)
}
