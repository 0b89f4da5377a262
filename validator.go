package di

import (
	"fmt"
	"reflect"

	"github.com/ferrix/di/errorx"
	"github.com/ferrix/di/syncx"
)

type validatorState struct {
	Singleton CallSite
}

// CallSiteValidator walks call-site graphs through the visitor protocol to
// detect scope misuse: a scoped service consumed by a singleton, or resolved
// from the root scope.
type CallSiteValidator struct {
	scopedServices *syncx.Map[reflect.Type, reflect.Type]
}

func (v *CallSiteValidator) ValidateCallSite(callSite CallSite) error {
	scoped, err := v.visitCallSite(callSite, validatorState{})
	if err != nil {
		return err
	}

	if scoped != nil {
		v.scopedServices.Store(callSite.ServiceType(), scoped)
	}

	return nil
}

func (v *CallSiteValidator) ValidateResolution(serviceType reflect.Type, scope Scope, rootScope Scope) (err error) {
	if scope == rootScope {
		scopedService, ok := v.scopedServices.Load(serviceType)
		if !ok {
			return
		}
		if serviceType == scopedService {
			return &errorx.ScopedServiceFromRootError{
				Message: fmt.Sprintf("cannot resolve scoped service '%v' from root scope", serviceType)}
		}

		return &errorx.ScopedServiceFromRootError{
			Message: fmt.Sprintf("cannot resolve '%v' from root scope because it requires scoped service '%v'", serviceType, scopedService),
		}
	}
	return
}

func (v *CallSiteValidator) visitCallSite(callSite CallSite, state validatorState) (reflect.Type, error) {
	switch callSite.Cache().Location {
	case CacheLocation_Root:
		return v.visitRootCache(callSite, state)
	case CacheLocation_Scope:
		return v.visitScopeCache(callSite, state)
	case CacheLocation_Dispose:
		return v.visitDisposeCache(callSite, state)
	case CacheLocation_None:
		return v.visitNoCache(callSite, state)
	default:
		panic(fmt.Sprintf("unknown cache location '%v'", callSite.Cache().Location))
	}
}

func (v *CallSiteValidator) visitCallSiteMain(callSite CallSite, state validatorState) (reflect.Type, error) {
	switch callSite.Kind() {
	case CallSiteKind_Slice:
		return v.visitSlice(callSite.(*SliceCallSite), state)
	case CallSiteKind_Constructor:
		return v.visitConstructor(callSite.(*ConstructorCallSite), state)
	case CallSiteKind_Constant, CallSiteKind_Factory, CallSiteKind_Container, CallSiteKind_ScopeFactory:
		// leaves: no nested call sites to walk
		return nil, nil
	default:
		panic(fmt.Sprintf("unknown call site kind '%v'", callSite.Kind()))
	}
}

func (v *CallSiteValidator) visitConstructor(callSite *ConstructorCallSite, state validatorState) (reflect.Type, error) {
	var result reflect.Type
	for _, cs := range callSite.Parameters {
		scoped, err := v.visitCallSite(cs, state)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = scoped
		}
	}

	return result, nil
}

func (v *CallSiteValidator) visitSlice(callSite *SliceCallSite, state validatorState) (reflect.Type, error) {
	var result reflect.Type
	for _, cs := range callSite.CallSites {
		scoped, err := v.visitCallSite(cs, state)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = scoped
		}
	}
	return result, nil
}

func (v *CallSiteValidator) visitRootCache(singletonCallSite CallSite, state validatorState) (reflect.Type, error) {
	state.Singleton = singletonCallSite
	return v.visitCallSiteMain(singletonCallSite, state)
}

func (v *CallSiteValidator) visitScopeCache(scopedCallSite CallSite, state validatorState) (reflect.Type, error) {
	if scopedCallSite.ServiceType() == ScopeFactoryType {
		return nil, nil
	}

	if state.Singleton != nil {
		return nil, fmt.Errorf("cannot consume scoped service '%v' from singleton '%v'",
			scopedCallSite.ServiceType(),
			state.Singleton.ServiceType())
	}
	_, err := v.visitCallSiteMain(scopedCallSite, state)
	if err != nil {
		return nil, err
	}

	return scopedCallSite.ServiceType(), nil
}

func (v *CallSiteValidator) visitDisposeCache(callSite CallSite, state validatorState) (reflect.Type, error) {
	return v.visitCallSiteMain(callSite, state)
}

func (v *CallSiteValidator) visitNoCache(callSite CallSite, state validatorState) (reflect.Type, error) {
	return v.visitCallSiteMain(callSite, state)
}

func newCallSiteValidator() *CallSiteValidator {
	return &CallSiteValidator{scopedServices: syncx.NewMap[reflect.Type, reflect.Type]()}
}
