package concrete

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeToolNotFound          = "TOOL_NOT_FOUND"
	ErrCodeToolMethodNotFound    = "TOOL_METHOD_NOT_FOUND"
	ErrCodeToolInvocation        = "TOOL_INVOCATION_ERROR"
	ErrCodeDuplicateRegistration = "DUPLICATE_REGISTRATION"
	ErrCodeSchemaNotRegistered   = "SCHEMA_NOT_REGISTERED"
	ErrCodeCapabilityNotFound    = "CAPABILITY_NOT_FOUND"
	ErrCodeOperatorRefusal       = "OPERATOR_REFUSAL"
	ErrCodeCompletion            = "COMPLETION_ERROR"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeCyclicGraph           = "CYCLIC_GRAPH"
	ErrCodeMissingNode           = "MISSING_NODE"
	ErrCodeNodeExecution         = "NODE_EXECUTION_ERROR"
	ErrCodeStoreUnavailable      = "STORE_UNAVAILABLE"
	ErrCodeStore                 = "STORE_ERROR"
	ErrCodeConfiguration         = "CONFIGURATION_ERROR"
	ErrCodeCancelled             = "EXECUTION_CANCELLED"
	ErrCodeTimeout               = "EXECUTION_TIMEOUT"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// ConcreteError is the error type shared by every concrete package.
type ConcreteError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeToolNotFound)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "dispatch", "execution")
	Node    string // The graph node or operator the error concerns, if any
	Query   string // The query sent to the completion service, if any
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *ConcreteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *ConcreteError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *ConcreteError carrying the same code.
// This lets callers match on the sentinels below with errors.Is.
func (e *ConcreteError) Is(target error) bool {
	t, ok := target.(*ConcreteError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is. Only the Code field is meaningful.
var (
	ErrValidation            = &ConcreteError{Code: ErrCodeValidation}
	ErrToolNotFound          = &ConcreteError{Code: ErrCodeToolNotFound}
	ErrToolMethodNotFound    = &ConcreteError{Code: ErrCodeToolMethodNotFound}
	ErrToolInvocation        = &ConcreteError{Code: ErrCodeToolInvocation}
	ErrDuplicateRegistration = &ConcreteError{Code: ErrCodeDuplicateRegistration}
	ErrSchemaNotRegistered   = &ConcreteError{Code: ErrCodeSchemaNotRegistered}
	ErrCapabilityNotFound    = &ConcreteError{Code: ErrCodeCapabilityNotFound}
	ErrOperatorRefusal       = &ConcreteError{Code: ErrCodeOperatorRefusal}
	ErrCompletion            = &ConcreteError{Code: ErrCodeCompletion}
	ErrRateLimited           = &ConcreteError{Code: ErrCodeRateLimited}
	ErrCyclicGraph           = &ConcreteError{Code: ErrCodeCyclicGraph}
	ErrMissingNode           = &ConcreteError{Code: ErrCodeMissingNode}
	ErrNodeExecution         = &ConcreteError{Code: ErrCodeNodeExecution}
	ErrStoreUnavailable      = &ConcreteError{Code: ErrCodeStoreUnavailable}
	ErrStore                 = &ConcreteError{Code: ErrCodeStore}
	ErrConfiguration         = &ConcreteError{Code: ErrCodeConfiguration}
	ErrCancelled             = &ConcreteError{Code: ErrCodeCancelled}
	ErrTimeout               = &ConcreteError{Code: ErrCodeTimeout}
)

// NewError creates a new ConcreteError.
func NewError(code, stage, message string, cause error) *ConcreteError {
	return &ConcreteError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// Specific error constructors

func NewValidationError(stage, message string, cause error) *ConcreteError {
	return NewError(ErrCodeValidation, stage, message, cause)
}

func NewToolNotFoundError(stage, toolName string) *ConcreteError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", toolName), nil)
}

func NewToolMethodNotFoundError(stage, toolName, methodName string) *ConcreteError {
	msg := fmt.Sprintf("tool '%s' has no method '%s'", toolName, methodName)
	return NewError(ErrCodeToolMethodNotFound, stage, msg, nil)
}

func NewToolInvocationError(stage, toolName, methodName string, cause error) *ConcreteError {
	msg := fmt.Sprintf("invocation of '%s.%s' failed", toolName, methodName)
	return NewError(ErrCodeToolInvocation, stage, msg, cause)
}

func NewDuplicateRegistrationError(stage, kind, name string) *ConcreteError {
	msg := fmt.Sprintf("%s '%s' is already registered", kind, name)
	return NewError(ErrCodeDuplicateRegistration, stage, msg, nil)
}

func NewSchemaNotRegisteredError(name string) *ConcreteError {
	return NewError(ErrCodeSchemaNotRegistered, "schema", fmt.Sprintf("answer schema '%s' is not registered", name), nil)
}

func NewCapabilityNotFoundError(operatorName, capability string) *ConcreteError {
	e := NewError(ErrCodeCapabilityNotFound, "dispatch", fmt.Sprintf("operator has no capability '%s'", capability), nil)
	e.Node = operatorName
	return e
}

// NewOperatorRefusalError records a refusal together with the query that provoked it.
func NewOperatorRefusalError(operatorName, query, refusal string) *ConcreteError {
	e := NewError(ErrCodeOperatorRefusal, "dispatch", fmt.Sprintf("model refused to answer: %s", refusal), nil)
	e.Node = operatorName
	e.Query = query
	return e
}

func NewCompletionError(stage string, cause error) *ConcreteError {
	return NewError(ErrCodeCompletion, stage, "completion request failed", cause)
}

func NewRateLimitedError(provider string, cause error) *ConcreteError {
	return NewError(ErrCodeRateLimited, "completion", fmt.Sprintf("provider '%s' is rate limiting requests", provider), cause)
}

func NewCyclicGraphError(node string) *ConcreteError {
	e := NewError(ErrCodeCyclicGraph, "validation", fmt.Sprintf("cycle detected at node '%s'", node), nil)
	e.Node = node
	return e
}

func NewMissingNodeError(node string) *ConcreteError {
	e := NewError(ErrCodeMissingNode, "validation", fmt.Sprintf("node '%s' must be added before adding edges", node), nil)
	e.Node = node
	return e
}

// NewNodeExecutionError tags a failure with the node that aborted the traversal.
func NewNodeExecutionError(node string, cause error) *ConcreteError {
	e := NewError(ErrCodeNodeExecution, "execution", fmt.Sprintf("node '%s' failed", node), cause)
	e.Node = node
	return e
}

func NewStoreUnavailableError(operatorName string) *ConcreteError {
	e := NewError(ErrCodeStoreUnavailable, "initialization", "message storing requested but no message store is available", nil)
	e.Node = operatorName
	return e
}

func NewStoreError(operation string, cause error) *ConcreteError {
	return NewError(ErrCodeStore, "store", fmt.Sprintf("store operation '%s' failed", operation), cause)
}

func NewConfigurationError(message string, cause error) *ConcreteError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *ConcreteError {
	msg := "execution cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" {
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewTimeoutError(stage string, cause error) *ConcreteError {
	return NewError(ErrCodeTimeout, stage, "execution timed out", cause)
}

func NewInternalError(stage, message string, cause error) *ConcreteError {
	return NewError(ErrCodeInternal, stage, message, cause)
}

// CodeOf returns the code of the first ConcreteError in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var ce *ConcreteError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// NodeOf returns the node or operator name recorded on the first ConcreteError in err's chain.
func NodeOf(err error) string {
	var ce *ConcreteError
	if errors.As(err, &ce) {
		return ce.Node
	}
	return ""
}
