package di

import (
	"testing"

	"github.com/ferrix/di/errorx"
	"github.com/ferrix/di/reflectx"
	"github.com/stretchr/testify/require"
)

type Dep1 struct{}
type Dep2 struct{}

type Svc struct {
	d1   *Dep1
	d2   *Dep2
	port int
}

var dep1Descriptor = NewConstructorDescriptor(reflectx.TypeOf[*Dep1](), Lifetime_Transient, func() *Dep1 { return &Dep1{} })
var dep2Descriptor = NewConstructorDescriptor(reflectx.TypeOf[*Dep2](), Lifetime_Transient, func() *Dep2 { return &Dep2{} })

func TestConstructorSelection_PreferMostParameters(t *testing.T) {
	descriptors := []*Descriptor{
		dep1Descriptor,
		dep2Descriptor,
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient,
			func(d1 *Dep1) *Svc { return &Svc{d1: d1} },
			func(d1 *Dep1, d2 *Dep2) *Svc { return &Svc{d1: d1, d2: d2} },
		),
	}
	callSiteFactory := mustFactory(t, descriptors)

	callSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[*Svc](), newCallSiteChain())
	require.NoError(t, err)

	ccs, ok := callSite.(*ConstructorCallSite)
	require.True(t, ok)
	require.Equal(t, 2, len(ccs.Ctor.In))
	require.Equal(t, 2, len(ccs.Parameters))
}

func TestConstructorSelection_SkipUnresolvableCandidate(t *testing.T) {
	// *Dep2 is not registered, so the two-parameter candidate is skipped
	descriptors := []*Descriptor{
		dep1Descriptor,
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient,
			func(d1 *Dep1) *Svc { return &Svc{d1: d1} },
			func(d1 *Dep1, d2 *Dep2) *Svc { return &Svc{d1: d1, d2: d2} },
		),
	}
	callSiteFactory := mustFactory(t, descriptors)

	callSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[*Svc](), newCallSiteChain())
	require.NoError(t, err)

	ccs, ok := callSite.(*ConstructorCallSite)
	require.True(t, ok)
	require.Equal(t, 1, len(ccs.Ctor.In))
}

func TestConstructorSelection_Ambiguous(t *testing.T) {
	// both candidates resolve and neither parameter set covers the other
	descriptors := []*Descriptor{
		dep1Descriptor,
		dep2Descriptor,
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient,
			func(d1 *Dep1) *Svc { return &Svc{d1: d1} },
			func(d2 *Dep2) *Svc { return &Svc{d2: d2} },
		),
	}
	callSiteFactory := mustFactory(t, descriptors)

	_, err := callSiteFactory.GetCallSite(reflectx.TypeOf[*Svc](), newCallSiteChain())
	var ambiguous *errorx.AmbiguousConstructorError
	require.ErrorAs(t, err, &ambiguous)
	require.Equal(t, reflectx.TypeOf[*Svc](), ambiguous.ImplementationType)
}

func TestConstructorSelection_UnableToActivate(t *testing.T) {
	descriptors := []*Descriptor{
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient,
			func(d1 *Dep1) *Svc { return &Svc{d1: d1} },
			func(d2 *Dep2) *Svc { return &Svc{d2: d2} },
		),
	}
	callSiteFactory := mustFactory(t, descriptors)

	_, err := callSiteFactory.GetCallSite(reflectx.TypeOf[*Svc](), newCallSiteChain())
	var unable *errorx.UnableToActivateError
	require.ErrorAs(t, err, &unable)
}

func TestConstructorSelection_SingleCandidateReportsParameter(t *testing.T) {
	// with a single candidate the missing parameter itself is the error
	descriptors := []*Descriptor{
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient,
			func(d1 *Dep1) *Svc { return &Svc{d1: d1} },
		),
	}
	callSiteFactory := mustFactory(t, descriptors)

	_, err := callSiteFactory.GetCallSite(reflectx.TypeOf[*Svc](), newCallSiteChain())
	var unresolved *errorx.UnresolvedDependencyError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, reflectx.TypeOf[*Dep1](), unresolved.ParameterType)
	require.Equal(t, reflectx.TypeOf[*Svc](), unresolved.ImplementationType)
}

func TestConstructorSelection_CircularCandidateAborts(t *testing.T) {
	// a cyclic candidate is a registration defect, not a candidate to skip:
	// selection stops even though the one-parameter candidate would resolve
	descriptors := []*Descriptor{
		dep1Descriptor,
		NewConstructorDescriptor(reflectx.TypeOf[*Dep2](), Lifetime_Transient,
			func(s *Svc) *Dep2 { return &Dep2{} }),
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient,
			func(d1 *Dep1) *Svc { return &Svc{d1: d1} },
			func(d1 *Dep1, d2 *Dep2) *Svc { return &Svc{d1: d1, d2: d2} },
		),
	}
	callSiteFactory := mustFactory(t, descriptors)

	_, err := callSiteFactory.GetCallSite(reflectx.TypeOf[*Svc](), newCallSiteChain())
	var circular *errorx.CircularDependencyError
	require.ErrorAs(t, err, &circular)
}

func TestConstructorDefaultValue(t *testing.T) {
	descriptors := []*Descriptor{
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient,
			NewConstructorInfo(func(port int) *Svc { return &Svc{port: port} }).WithDefault(0, 8080),
		),
	}
	callSiteFactory := mustFactory(t, descriptors)

	callSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[*Svc](), newCallSiteChain())
	require.NoError(t, err)

	ccs, ok := callSite.(*ConstructorCallSite)
	require.True(t, ok)
	require.Equal(t, 1, len(ccs.Parameters))

	constant, ok := ccs.Parameters[0].(*ConstantCallSite)
	require.True(t, ok)
	require.Equal(t, 8080, constant.Value())
}

func TestConstructorDefaultValue_RegistrationWins(t *testing.T) {
	descriptors := []*Descriptor{
		NewConstructorDescriptor(reflectx.TypeOf[int](), Lifetime_Transient, func() int { return 9090 }),
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient,
			NewConstructorInfo(func(port int) *Svc { return &Svc{port: port} }).WithDefault(0, 8080),
		),
	}
	callSiteFactory := mustFactory(t, descriptors)

	callSite, err := callSiteFactory.GetCallSite(reflectx.TypeOf[*Svc](), newCallSiteChain())
	require.NoError(t, err)

	ccs := callSite.(*ConstructorCallSite)
	require.Equal(t, CallSiteKind_Constructor, ccs.Parameters[0].Kind())
}

func TestNewConstructorDescriptor_Panics(t *testing.T) {
	require.Panics(t, func() {
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient)
	})

	// not a function
	require.Panics(t, func() {
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient, 42)
	})

	// wrong return type
	require.Panics(t, func() {
		NewConstructorDescriptor(reflectx.TypeOf[*Svc](), Lifetime_Transient, func() *Dep1 { return nil })
	})
}

func TestConstructorInfo_WithDefaultOutOfRange(t *testing.T) {
	ci := NewConstructorInfo(func(port int) *Svc { return nil })
	require.Panics(t, func() { ci.WithDefault(1, "x") })
	require.Panics(t, func() { ci.WithDefault(-1, "x") })
}
