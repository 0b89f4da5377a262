package errorx

import (
	"fmt"
	"reflect"
	"strings"
)

// RegistrationError reports an invalid service descriptor discovered while the
// call-site factory is populated. It is fatal to container construction.
type RegistrationError struct {
	ServiceType reflect.Type
	Message     string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("RegistrationError '%v': %v", e.ServiceType, e.Message)
}

func NewRegistrationError(serviceType reflect.Type, format string, args ...any) *RegistrationError {
	return &RegistrationError{
		ServiceType: serviceType,
		Message:     fmt.Sprintf(format, args...),
	}
}

type CircularDependencyError struct {
	ServiceType reflect.Type
	// The requested types on the resolution stack, outermost first,
	// ending with the repeated type.
	Path []reflect.Type
}

func (e *CircularDependencyError) Error() string {
	var sb strings.Builder
	sb.WriteString("a circular dependency was detected for the service of type '")
	sb.WriteString(e.ServiceType.String())
	sb.WriteString("'")
	if len(e.Path) > 0 {
		sb.WriteString(": ")
		for i, t := range e.Path {
			if i > 0 {
				sb.WriteString(" -> ")
			}
			sb.WriteString(t.String())
		}
	}
	return sb.String()
}

// NoSuitableConstructorError reports an implementation registered without any
// constructor candidate.
type NoSuitableConstructorError struct {
	ImplementationType reflect.Type
}

func (e *NoSuitableConstructorError) Error() string {
	return fmt.Sprintf("no suitable constructor for type '%v'", e.ImplementationType)
}

// UnresolvedDependencyError reports a constructor parameter that has no
// registration and no declared default value.
type UnresolvedDependencyError struct {
	ParameterType      reflect.Type
	ImplementationType reflect.Type
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("unable to resolve service for type '%v' while attempting to activate '%v'",
		e.ParameterType, e.ImplementationType)
}

// AmbiguousConstructorError reports two constructor candidates that are both
// fully resolvable and neither of which dominates the other.
type AmbiguousConstructorError struct {
	ImplementationType reflect.Type
	First              string
	Second             string
}

func (e *AmbiguousConstructorError) Error() string {
	return fmt.Sprintf("ambiguous constructors for type '%v': '%v' and '%v'",
		e.ImplementationType, e.First, e.Second)
}

// UnableToActivateError reports an implementation none of whose constructor
// candidates could be fully resolved.
type UnableToActivateError struct {
	ImplementationType reflect.Type
}

func (e *UnableToActivateError) Error() string {
	return fmt.Sprintf("unable to activate type '%v': no constructor candidate could be resolved", e.ImplementationType)
}

type ServiceNotFound struct {
	ServiceType reflect.Type
}

func (e *ServiceNotFound) Error() string {
	return fmt.Sprintf("ServiceNotFound '%v'", e.ServiceType)
}

type FuncSignatureError struct {
	Message string
}

func (e *FuncSignatureError) Error() string {
	return fmt.Sprintf("FuncSignatureError: %v", e.Message)
}

type TypeIncompatibilityError struct {
	To   reflect.Type
	From reflect.Type
}

func (e *TypeIncompatibilityError) Error() string {
	return fmt.Sprintf("the value of type '%v' can not assignable to type '%v'", e.From, e.To)
}

type ObjectDisposedError struct {
	Message string
}

func (e *ObjectDisposedError) Error() string {
	return fmt.Sprintf("ObjectDisposedError: %v", e.Message)
}

type ScopedServiceFromRootError struct {
	Message string
}

func (e *ScopedServiceFromRootError) Error() string {
	return fmt.Sprintf("ScopedServiceFromRootError: %v", e.Message)
}

type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Add(err error) {
	e.Errors = append(e.Errors, err)
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	b.WriteString("AggregateError: \n")
	for _, e := range e.Errors {
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return b.String()
}
