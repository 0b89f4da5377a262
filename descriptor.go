package di

import (
	"fmt"
	"reflect"

	"github.com/ferrix/di/errorx"
	"github.com/ferrix/di/reflectx"
)

type Lifetime byte

const (
	Lifetime_Singleton Lifetime = iota
	Lifetime_Scoped
	Lifetime_Transient
)

type Factory func(Container) any

// ConstructorInfo describes one constructor candidate: a function returning
// the service (plus an optional error) whose input parameters are resolved
// from the container. A parameter may carry a declared default value used
// when its type has no registration.
type ConstructorInfo struct {
	FuncType  reflect.Type
	FuncValue reflect.Value
	// input parameter types
	In []reflect.Type
	// output parameter types
	Out []reflect.Type

	defaults map[int]any
}

func (c *ConstructorInfo) Call(params []reflect.Value) []reflect.Value {
	return c.FuncValue.Call(params)
}

// WithDefault declares a fallback value for the parameter at index, used when
// the parameter's type cannot be resolved. Returns c for chaining.
func (c *ConstructorInfo) WithDefault(index int, value any) *ConstructorInfo {
	if index < 0 || index >= len(c.In) {
		panic(fmt.Errorf("default value index %d out of range for constructor '%v'", index, c.FuncType))
	}
	if c.defaults == nil {
		c.defaults = make(map[int]any)
	}
	c.defaults[index] = value
	return c
}

func (c *ConstructorInfo) DefaultFor(index int) (any, bool) {
	v, ok := c.defaults[index]
	return v, ok
}

func (c *ConstructorInfo) String() string {
	return c.FuncType.String()
}

// NewConstructorInfo builds a candidate from a constructor function. Use
// WithDefault to declare per-parameter fallback values.
func NewConstructorInfo(ctor any) *ConstructorInfo {
	ft := reflect.TypeOf(ctor)
	return &ConstructorInfo{
		FuncValue: reflect.ValueOf(ctor),
		FuncType:  ft,
		In:        reflectx.GetInParameters(ft),
		Out:       reflectx.GetOutParameters(ft),
	}
}

// GenericBinder is an open-generic registration: the definition it is keyed
// by, and a function that closes the registration against a concrete
// requested type. Bind returns a constructor for the closed service type, or
// (nil, nil) to decline the closing.
type GenericBinder struct {
	Def  reflectx.GenericDef
	Bind func(serviceType reflect.Type) (any, error)
}

// Descriptor is an immutable service registration: the requested type, a
// lifetime, and exactly one implementation strategy (instance, factory,
// constructor candidates, or an open-generic binder).
type Descriptor struct {
	ServiceType reflect.Type
	Lifetime    Lifetime
	Ctors       []*ConstructorInfo
	Instance    any
	Factory     Factory
	Generic     *GenericBinder
}

func (d *Descriptor) String() string {
	s := fmt.Sprintf("ServiceType: %v Lifetime: %v ", d.ServiceType, d.Lifetime)

	switch {
	case len(d.Ctors) > 0:
		s += fmt.Sprintf("Constructors: %v", d.Ctors)
	case d.Factory != nil:
		s += "Factory"
	case d.Generic != nil:
		s += fmt.Sprintf("Generic: %v", d.Generic.Def)
	default:
		s += fmt.Sprintf("Instance: %v", d.Instance)
	}

	return s
}

func NewInstanceDescriptor(serviceType reflect.Type, instance any) *Descriptor {
	if err := instanceAssignable(instance, serviceType); err != nil {
		panic(err)
	}

	return &Descriptor{
		ServiceType: serviceType,
		Lifetime:    Lifetime_Singleton,
		Instance:    instance,
	}
}

// NewConstructorDescriptor creates a registration with one or more
// constructor candidates. Each candidate is a constructor function or a
// *ConstructorInfo. With multiple candidates the engine picks one at
// resolution time, preferring the fully-resolvable candidate with the most
// parameters.
func NewConstructorDescriptor(serviceType reflect.Type, lifetime Lifetime, ctors ...any) *Descriptor {
	if len(ctors) == 0 {
		panic(&errorx.NoSuitableConstructorError{ImplementationType: serviceType})
	}

	infos := make([]*ConstructorInfo, len(ctors))
	for i, ctor := range ctors {
		ci, ok := ctor.(*ConstructorInfo)
		if !ok {
			ci = NewConstructorInfo(ctor)
		}
		if err := checkConstructor(ci, serviceType); err != nil {
			panic(err)
		}
		infos[i] = ci
	}

	return &Descriptor{
		ServiceType: serviceType,
		Lifetime:    lifetime,
		Ctors:       infos,
	}
}

func NewFactoryDescriptor(serviceType reflect.Type, lifetime Lifetime, factory Factory) *Descriptor {
	return &Descriptor{
		ServiceType: serviceType,
		Lifetime:    lifetime,
		Factory:     factory,
	}
}

// NewGenericDescriptor creates an open-generic registration. The specimen is
// any instantiation of the generic definition being registered; only its
// definition (base name and arity) is retained. At resolution time bind
// receives the closed requested type and returns a constructor for it.
func NewGenericDescriptor(specimen reflect.Type, lifetime Lifetime, bind func(serviceType reflect.Type) (any, error)) *Descriptor {
	def, ok := reflectx.GenericDefOf(specimen)
	if !ok {
		panic(errorx.NewRegistrationError(specimen, "the type is not an instantiation of a generic definition"))
	}
	if bind == nil {
		panic(errorx.NewRegistrationError(specimen, "the bind function is nil"))
	}

	return &Descriptor{
		ServiceType: specimen,
		Lifetime:    lifetime,
		Generic:     &GenericBinder{Def: def, Bind: bind},
	}
}

func checkConstructor(ctor *ConstructorInfo, serviceType reflect.Type) (err error) {
	if ctor.FuncType == nil || ctor.FuncType.Kind() != reflect.Func {
		return fmt.Errorf("the constructor of the service '%v' is not a function", serviceType)
	}

	out := ctor.Out
	numOut := len(out)
	if (numOut == 0 || numOut > 2) ||
		!out[0].AssignableTo(serviceType) ||
		(numOut == 2 && !reflectx.IsErrorType(out[1])) {
		return fmt.Errorf("the constructor must returns a '%v' and an optional error", serviceType)
	}

	return
}

func instanceAssignable(instance any, to reflect.Type) (err error) {
	if t := reflect.TypeOf(instance); t == nil || !t.AssignableTo(to) {
		err = &errorx.TypeIncompatibilityError{To: to, From: t}
	}
	return
}

// validateDescriptor enforces descriptor shape eagerly, before any
// resolution: a non-nil service type and exactly one implementation strategy,
// with strategy-specific checks on top.
func validateDescriptor(d *Descriptor) error {
	if d == nil {
		return errorx.NewRegistrationError(nil, "nil descriptor")
	}
	if d.ServiceType == nil {
		return errorx.NewRegistrationError(nil, "the descriptor has no service type")
	}

	strategies := 0
	if d.Instance != nil {
		strategies++
	}
	if d.Factory != nil {
		strategies++
	}
	if len(d.Ctors) > 0 {
		strategies++
	}
	if d.Generic != nil {
		strategies++
	}
	if strategies != 1 {
		return errorx.NewRegistrationError(d.ServiceType,
			"the descriptor must supply exactly one of instance, factory, constructors or generic binder")
	}

	switch {
	case d.Instance != nil:
		if err := instanceAssignable(d.Instance, d.ServiceType); err != nil {
			return errorx.NewRegistrationError(d.ServiceType, "%v", err)
		}
	case len(d.Ctors) > 0:
		for _, ci := range d.Ctors {
			if err := checkConstructor(ci, d.ServiceType); err != nil {
				return errorx.NewRegistrationError(d.ServiceType, "%v", err)
			}
		}
	case d.Generic != nil:
		if d.Generic.Bind == nil {
			return errorx.NewRegistrationError(d.ServiceType, "the generic binder has no bind function")
		}
		def, ok := reflectx.GenericDefOf(d.ServiceType)
		if !ok || def != d.Generic.Def {
			return errorx.NewRegistrationError(d.ServiceType,
				"the service type of a generic registration must instantiate the bound definition '%v'", d.Generic.Def)
		}
	}

	return nil
}
