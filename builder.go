package di

import (
	"reflect"

	"github.com/ferrix/di/errorx"
	"github.com/ferrix/di/reflectx"
	"github.com/ferrix/di/syncx"
)

type ContainerBuilder interface {
	Add(...*Descriptor)
	Contains(reflect.Type) bool
	Remove(reflect.Type)
	Build() Container
	ConfigureOptions(func(*Options))
}

type containerBuilder struct {
	descriptors          []*Descriptor
	optionsConfigurators []func(*Options)
}

func (b *containerBuilder) ConfigureOptions(f func(*Options)) {
	b.optionsConfigurators = append(b.optionsConfigurators, f)
}

func (b *containerBuilder) Add(d ...*Descriptor) {
	b.descriptors = append(b.descriptors, d...)
}

func (b *containerBuilder) Contains(serviceType reflect.Type) bool {
	for _, d := range b.descriptors {
		if d.ServiceType == serviceType {
			return true
		}
	}
	return false
}

func (b *containerBuilder) Remove(serviceType reflect.Type) {
	kept := b.descriptors[:0]
	for _, d := range b.descriptors {
		if d.ServiceType != serviceType {
			kept = append(kept, d)
		}
	}
	b.descriptors = kept
}

func (b *containerBuilder) builtInServices(c *container) {
	csf := c.CallSiteFactory

	csf.Add(ContainerType, &ContainerCallSite{})
	csf.Add(ScopeFactoryType, &ScopeFactoryCallSite{})
	csf.Add(IsServiceType, newConstantCallSite(IsServiceType, csf))
}

func (b *containerBuilder) configureOptions(options *Options) {
	for _, f := range b.optionsConfigurators {
		f(options)
	}
}

func (b *containerBuilder) Build() Container {
	options := DefaultOptions()
	b.configureOptions(&options)

	callSiteFactory, err := newCallSiteFactory(b.descriptors)
	if err != nil {
		panic(err)
	}

	c := &container{
		CallSiteFactory:  callSiteFactory,
		realizedServices: syncx.NewMap[reflect.Type, ServiceAccessor](),
	}

	c.Root = newEngineScope(c, true)
	c.engine = c.createEngine()

	b.builtInServices(c)

	if options.ValidateScopes {
		c.callSiteValidator = newCallSiteValidator()
	}

	if options.ValidateOnBuild {
		errs := make([]error, 0)
		for _, d := range b.descriptors {
			if e := c.validateService(d); e != nil {
				errs = append(errs, e)
			}
		}

		if len(errs) > 0 {
			panic(&errorx.AggregateError{Errors: errs})
		}
	}

	return c
}

// Create a ContainerBuilder
func Builder() ContainerBuilder {
	return &containerBuilder{}
}

// New a descriptor with instance
func Instance[T any](instance any) *Descriptor {
	return NewInstanceDescriptor(reflectx.TypeOf[T](), instance)
}

// New a transient constructor descriptor.
// Each ctor is a constructor function or a *ConstructorInfo; with more than
// one, the engine disambiguates at resolution time.
func Transient[T any](ctors ...any) *Descriptor {
	return NewConstructorDescriptor(reflectx.TypeOf[T](), Lifetime_Transient, ctors...)
}

// New a scoped constructor descriptor
func Scoped[T any](ctors ...any) *Descriptor {
	return NewConstructorDescriptor(reflectx.TypeOf[T](), Lifetime_Scoped, ctors...)
}

// New a singleton constructor descriptor
func Singleton[T any](ctors ...any) *Descriptor {
	return NewConstructorDescriptor(reflectx.TypeOf[T](), Lifetime_Singleton, ctors...)
}

// Add a transient service descriptor to the ContainerBuilder.
// T is the service type,
// cb is the ContainerBuilder,
// ctors are the constructor candidates of the service T.
func AddTransient[T any](cb ContainerBuilder, ctors ...any) {
	cb.Add(Transient[T](ctors...))
}

// Add a scoped service descriptor to the ContainerBuilder.
func AddScoped[T any](cb ContainerBuilder, ctors ...any) {
	cb.Add(Scoped[T](ctors...))
}

// Add a singleton service descriptor to the ContainerBuilder.
func AddSingleton[T any](cb ContainerBuilder, ctors ...any) {
	cb.Add(Singleton[T](ctors...))
}

// Add an instance service descriptor to the ContainerBuilder.
// The instance must be assignable to the service T.
func AddInstance[T any](cb ContainerBuilder, instance any) {
	cb.Add(Instance[T](instance))
}

// New a transient factory descriptor
func TransientFactory[T any](factory Factory) *Descriptor {
	return NewFactoryDescriptor(reflectx.TypeOf[T](), Lifetime_Transient, factory)
}

// New a scoped factory descriptor
func ScopedFactory[T any](factory Factory) *Descriptor {
	return NewFactoryDescriptor(reflectx.TypeOf[T](), Lifetime_Scoped, factory)
}

// New a singleton factory descriptor
func SingletonFactory[T any](factory Factory) *Descriptor {
	return NewFactoryDescriptor(reflectx.TypeOf[T](), Lifetime_Singleton, factory)
}

func AddTransientFactory[T any](cb ContainerBuilder, factory Factory) {
	cb.Add(TransientFactory[T](factory))
}

func AddScopedFactory[T any](cb ContainerBuilder, factory Factory) {
	cb.Add(ScopedFactory[T](factory))
}

func AddSingletonFactory[T any](cb ContainerBuilder, factory Factory) {
	cb.Add(SingletonFactory[T](factory))
}

// New an open-generic descriptor. T is any instantiation of the generic
// definition being registered; bind closes the registration against a
// requested type, returning a constructor or (nil, nil) to decline.
func Generic[T any](lifetime Lifetime, bind func(serviceType reflect.Type) (any, error)) *Descriptor {
	return NewGenericDescriptor(reflectx.TypeOf[T](), lifetime, bind)
}

func AddTransientGeneric[T any](cb ContainerBuilder, bind func(serviceType reflect.Type) (any, error)) {
	cb.Add(Generic[T](Lifetime_Transient, bind))
}

func AddScopedGeneric[T any](cb ContainerBuilder, bind func(serviceType reflect.Type) (any, error)) {
	cb.Add(Generic[T](Lifetime_Scoped, bind))
}

func AddSingletonGeneric[T any](cb ContainerBuilder, bind func(serviceType reflect.Type) (any, error)) {
	cb.Add(Generic[T](Lifetime_Singleton, bind))
}
