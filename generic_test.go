package di

import (
	"reflect"
	"testing"

	"github.com/ferrix/di/reflectx"
	"github.com/stretchr/testify/require"
)

type Repo[T any] interface {
	Store(T)
}

type memRepo[T any] struct {
	items []T
}

func (r *memRepo[T]) Store(v T) {
	r.items = append(r.items, v)
}

type sqlRepo[T any] struct{}

func (r *sqlRepo[T]) Store(v T) {}

// bindMemRepo closes Repo[T] onto *memRepo[T] for the element types the test
// suite uses, declining everything else. A binder must enumerate its closings
// because the runtime cannot instantiate a generic type from a reflect.Type.
func bindMemRepo(serviceType reflect.Type) (any, error) {
	switch serviceType {
	case reflectx.TypeOf[Repo[int]]():
		return func() Repo[int] { return &memRepo[int]{} }, nil
	case reflectx.TypeOf[Repo[string]]():
		return func() Repo[string] { return &memRepo[string]{} }, nil
	}
	return nil, nil
}

func genericRepoDescriptor(lifetime Lifetime) *Descriptor {
	return NewGenericDescriptor(reflectx.TypeOf[Repo[int]](), lifetime, bindMemRepo)
}

func TestGeneric_CloseRegistration(t *testing.T) {
	callSiteFactory := mustFactory(t, []*Descriptor{genericRepoDescriptor(Lifetime_Transient)})

	callSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[Repo[int]](), newCallSiteChain())
	require.NoError(t, err)
	require.NotNil(t, callSite)

	ccs, ok := callSite.(*ConstructorCallSite)
	require.True(t, ok)
	require.Equal(t, reflectx.TypeOf[Repo[int]](), ccs.ServiceType())
	require.Equal(t, reflectx.TypeOf[Repo[int]](), ccs.ImplementationType())
}

func TestGeneric_DistinctClosingsDistinctKeys(t *testing.T) {
	callSiteFactory := mustFactory(t, []*Descriptor{genericRepoDescriptor(Lifetime_Singleton)})

	intSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[Repo[int]](), newCallSiteChain())
	require.NoError(t, err)
	strSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[Repo[string]](), newCallSiteChain())
	require.NoError(t, err)

	// one registration, but each closing memoizes under its own identity
	require.Equal(t, CacheLocation_Root, intSite.Cache().Location)
	require.Equal(t, CacheLocation_Root, strSite.Cache().Location)
	require.NotEqual(t, intSite.Cache().Key, strSite.Cache().Key)
}

func TestGeneric_DeclinedClosing(t *testing.T) {
	callSiteFactory := mustFactory(t, []*Descriptor{genericRepoDescriptor(Lifetime_Transient)})

	// the binder declines float64, so the request falls through to not-found
	cs, err := callSiteFactory.GetCallSite(reflectx.TypeOf[Repo[float64]](), newCallSiteChain())
	require.NoError(t, err)
	require.Nil(t, cs)
}

func TestGeneric_ClosingIdentity(t *testing.T) {
	callSiteFactory := mustFactory(t, []*Descriptor{genericRepoDescriptor(Lifetime_Transient)})

	cs1, err := callSiteFactory.GetCallSite(reflectx.TypeOf[Repo[int]](), newCallSiteChain())
	require.NoError(t, err)
	cs2, err := callSiteFactory.GetCallSite(reflectx.TypeOf[Repo[int]](), newCallSiteChain())
	require.NoError(t, err)
	require.Same(t, cs1, cs2)
}

func TestGeneric_IsService(t *testing.T) {
	callSiteFactory := mustFactory(t, []*Descriptor{genericRepoDescriptor(Lifetime_Transient)})

	require.True(t, callSiteFactory.IsService(reflectx.TypeOf[Repo[int]]()))
	// IsService is keyed by definition; whether the binder accepts a closing
	// is not known until resolution
	require.True(t, callSiteFactory.IsService(reflectx.TypeOf[Repo[float64]]()))
	require.False(t, callSiteFactory.IsService(reflectx.TypeOf[Iface1]()))
}

func TestGeneric_BadConstructorFromBinder(t *testing.T) {
	// the binder answers Repo[int] with a constructor for the wrong type
	bind := func(serviceType reflect.Type) (any, error) {
		return func() Repo[string] { return &memRepo[string]{} }, nil
	}
	callSiteFactory := mustFactory(t, []*Descriptor{
		NewGenericDescriptor(reflectx.TypeOf[Repo[int]](), Lifetime_Transient, bind),
	})

	_, err := callSiteFactory.GetCallSite(reflectx.TypeOf[Repo[int]](), newCallSiteChain())
	require.Error(t, err)
}

func TestGeneric_SingletonPerClosing(t *testing.T) {
	b := Builder()
	AddSingletonGeneric[Repo[int]](b, bindMemRepo)
	c := b.Build()

	int1 := Get[Repo[int]](c)
	int2 := Get[Repo[int]](c)
	str1 := Get[Repo[string]](c)

	require.Same(t, int1, int2)
	require.NotNil(t, str1)
}

func TestGeneric_ConstructorInjection(t *testing.T) {
	type indexer struct {
		repo Repo[string]
	}

	b := Builder()
	AddTransientGeneric[Repo[int]](b, bindMemRepo)
	AddTransient[*indexer](b, func(r Repo[string]) *indexer { return &indexer{repo: r} })
	c := b.Build()

	ix := Get[*indexer](c)
	require.NotNil(t, ix.repo)
}

func TestGeneric_SliceMixesDirectAndClosed(t *testing.T) {
	descriptors := []*Descriptor{
		NewConstructorDescriptor(reflectx.TypeOf[Repo[int]](), Lifetime_Transient,
			func() Repo[int] { return &sqlRepo[int]{} }),
		genericRepoDescriptor(Lifetime_Transient),
	}
	callSiteFactory := mustFactory(t, descriptors)

	callSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[[]Repo[int]](), newCallSiteChain())
	require.NoError(t, err)

	slice, ok := callSite.(*SliceCallSite)
	require.True(t, ok)
	require.Equal(t, 2, len(slice.CallSites))

	// registration order across direct registrations and closings
	require.Equal(t, reflectx.TypeOf[*sqlRepo[int]](), slice.CallSites[0].ImplementationType())
	require.Equal(t, reflectx.TypeOf[Repo[int]](), slice.CallSites[1].ImplementationType())
}

func TestGeneric_SliceSkipsDeclinedClosings(t *testing.T) {
	descriptors := []*Descriptor{
		NewConstructorDescriptor(reflectx.TypeOf[Repo[float64]](), Lifetime_Transient,
			func() Repo[float64] { return &sqlRepo[float64]{} }),
		genericRepoDescriptor(Lifetime_Transient),
	}
	callSiteFactory := mustFactory(t, descriptors)

	callSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[[]Repo[float64]](), newCallSiteChain())
	require.NoError(t, err)

	slice := callSite.(*SliceCallSite)
	require.Equal(t, 1, len(slice.CallSites))
	require.Equal(t, reflectx.TypeOf[*sqlRepo[float64]](), slice.CallSites[0].ImplementationType())
}

func TestGeneric_ExactBeatsClosing(t *testing.T) {
	// a direct registration of the closed type registered after the open one
	// wins the singular resolution
	descriptors := []*Descriptor{
		genericRepoDescriptor(Lifetime_Transient),
		NewConstructorDescriptor(reflectx.TypeOf[Repo[int]](), Lifetime_Transient,
			func() Repo[int] { return &sqlRepo[int]{} }),
	}
	callSiteFactory := mustFactory(t, descriptors)

	callSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[Repo[int]](), newCallSiteChain())
	require.NoError(t, err)
	require.Equal(t, reflectx.TypeOf[*sqlRepo[int]](), callSite.ImplementationType())
}
