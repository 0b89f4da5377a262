package di

import (
	"errors"
	"reflect"
	"sort"

	"github.com/ferrix/di/errorx"
	"github.com/ferrix/di/reflectx"
	"github.com/ferrix/di/syncx"
	"github.com/ferrix/di/util"
)

type CallSiteKind byte

const (
	CallSiteKind_Constructor CallSiteKind = iota
	CallSiteKind_Constant
	CallSiteKind_Factory
	CallSiteKind_Slice
	CallSiteKind_Container
	CallSiteKind_ScopeFactory
)

// CallSite is a compiled description of how to produce an instance of a
// requested type, without producing it. The Kind discriminator together with
// the Cache lifetime annotation is the seam the executor and the validator
// dispatch on; variant-specific payloads are exported fields on the concrete
// call-site types.
type CallSite interface {
	ServiceType() reflect.Type
	// The concrete type the call site will produce. Informational.
	ImplementationType() reflect.Type
	Kind() CallSiteKind
	Value() any
	SetValue(any)
	Cache() ResultCache
}

//
type ConstantCallSite struct {
	serviceType reflect.Type
	value       any
}

func (cs *ConstantCallSite) Value() any {
	return cs.value
}

func (cs *ConstantCallSite) SetValue(v any) {
	cs.value = v
}

func (cs *ConstantCallSite) DefaultValue() any {
	return cs.value
}

func (cs *ConstantCallSite) ServiceType() reflect.Type {
	return cs.serviceType
}

func (cs *ConstantCallSite) ImplementationType() reflect.Type {
	if t := reflect.TypeOf(cs.value); t != nil {
		return t
	}
	return cs.serviceType
}

func (cs *ConstantCallSite) Kind() CallSiteKind {
	return CallSiteKind_Constant
}

// A fixed value has no construction to memoize, so a constant never carries a
// lifetime annotation.
func (cs *ConstantCallSite) Cache() ResultCache {
	return NoneResultCache
}

func newConstantCallSite(serviceType reflect.Type, defaultValue any) *ConstantCallSite {
	return &ConstantCallSite{
		serviceType: serviceType,
		value:       defaultValue,
	}
}

//
type ConstructorCallSite struct {
	serviceType reflect.Type
	value       any
	Ctor        *ConstructorInfo
	// Parameters is nil for a no-argument construction.
	Parameters []CallSite
	cache      ResultCache
}

func (cs *ConstructorCallSite) Value() any {
	return cs.value
}

func (cs *ConstructorCallSite) SetValue(v any) {
	cs.value = v
}

func (cs *ConstructorCallSite) ServiceType() reflect.Type {
	return cs.serviceType
}

func (cs *ConstructorCallSite) ImplementationType() reflect.Type {
	return cs.Ctor.Out[0]
}

func (cs *ConstructorCallSite) Kind() CallSiteKind {
	return CallSiteKind_Constructor
}

func (cs *ConstructorCallSite) Cache() ResultCache {
	return cs.cache
}

func newConstructorCallSite(cache ResultCache, serviceType reflect.Type, ctor *ConstructorInfo, parameters []CallSite) *ConstructorCallSite {
	return &ConstructorCallSite{
		cache:       cache,
		serviceType: serviceType,
		Ctor:        ctor,
		Parameters:  parameters,
	}
}

//
type FactoryCallSite struct {
	serviceType reflect.Type
	value       any
	Factory     Factory
	cache       ResultCache
}

func (cs *FactoryCallSite) Value() any {
	return cs.value
}

func (cs *FactoryCallSite) SetValue(v any) {
	cs.value = v
}

func (cs *FactoryCallSite) ServiceType() reflect.Type {
	return cs.serviceType
}

// The produced type of a user factory is unknown until it runs.
func (cs *FactoryCallSite) ImplementationType() reflect.Type {
	return cs.serviceType
}

func (cs *FactoryCallSite) Kind() CallSiteKind {
	return CallSiteKind_Factory
}

func (cs *FactoryCallSite) Cache() ResultCache {
	return cs.cache
}

func newFactoryCallSite(cache ResultCache, serviceType reflect.Type, factory Factory) *FactoryCallSite {
	return &FactoryCallSite{
		cache:       cache,
		serviceType: serviceType,
		Factory:     factory,
	}
}

//
type SliceCallSite struct {
	serviceType reflect.Type
	Elem        reflect.Type
	CallSites   []CallSite
	cache       ResultCache
	value       any
}

func (cs *SliceCallSite) Value() any {
	return cs.value
}

func (cs *SliceCallSite) SetValue(v any) {
	cs.value = v
}

func (cs *SliceCallSite) Cache() ResultCache {
	return cs.cache
}

func (cs *SliceCallSite) ServiceType() reflect.Type {
	return cs.serviceType
}

func (cs *SliceCallSite) ImplementationType() reflect.Type {
	return cs.serviceType
}

func (cs *SliceCallSite) Kind() CallSiteKind {
	return CallSiteKind_Slice
}

func newSliceCallSite(cache ResultCache, elem reflect.Type, callSites []CallSite) *SliceCallSite {
	return &SliceCallSite{
		cache:       cache,
		Elem:        elem,
		CallSites:   callSites,
		serviceType: reflect.SliceOf(elem),
	}
}

// ContainerCallSite resolves to the provider itself.
type ContainerCallSite struct {
	value any
}

func (cs *ContainerCallSite) Value() any {
	return cs.value
}

func (cs *ContainerCallSite) SetValue(v any) {
	cs.value = v
}

func (cs *ContainerCallSite) ServiceType() reflect.Type {
	return ContainerType
}

func (cs *ContainerCallSite) ImplementationType() reflect.Type {
	return ContainerType
}

func (cs *ContainerCallSite) Kind() CallSiteKind {
	return CallSiteKind_Container
}

func (cs *ContainerCallSite) Cache() ResultCache {
	return NoneResultCache
}

// ScopeFactoryCallSite resolves to the scope-creation capability of the root
// provider.
type ScopeFactoryCallSite struct {
	value any
}

func (cs *ScopeFactoryCallSite) Value() any {
	return cs.value
}

func (cs *ScopeFactoryCallSite) SetValue(v any) {
	cs.value = v
}

func (cs *ScopeFactoryCallSite) ServiceType() reflect.Type {
	return ScopeFactoryType
}

func (cs *ScopeFactoryCallSite) ImplementationType() reflect.Type {
	return ScopeFactoryType
}

func (cs *ScopeFactoryCallSite) Kind() CallSiteKind {
	return CallSiteKind_ScopeFactory
}

func (cs *ScopeFactoryCallSite) Cache() ResultCache {
	return NoneResultCache
}

// callSiteChain is the set of requested types currently mid-resolution on one
// top-level call. It exists only for cycle detection: empty before and after
// every top-level resolution, never shared between concurrent calls.
type chainItem struct {
	Order int
}

type callSiteChain struct {
	items map[reflect.Type]chainItem
}

func (c *callSiteChain) CheckCircularDependency(serviceType reflect.Type) error {
	if _, ok := c.items[serviceType]; ok {
		return c.createCircularDependencyError(serviceType)
	}
	return nil
}

func (c *callSiteChain) Add(serviceType reflect.Type) {
	c.items[serviceType] = chainItem{Order: len(c.items)}
}

func (c *callSiteChain) Remove(serviceType reflect.Type) {
	delete(c.items, serviceType)
}

func (c *callSiteChain) createCircularDependencyError(t reflect.Type) error {
	// entries are removed strictly LIFO, so Order values are contiguous
	path := make([]reflect.Type, len(c.items), len(c.items)+1)
	for k, item := range c.items {
		path[item.Order] = k
	}
	path = append(path, t)

	return &errorx.CircularDependencyError{ServiceType: t, Path: path}
}

func newCallSiteChain() *callSiteChain {
	return &callSiteChain{
		items: make(map[reflect.Type]chainItem),
	}
}

//

const DefaultSlot int = 0

// callSiteResult is a cached resolution outcome. site and err both nil means
// "no registration found", which is a valid, cacheable outcome; err non-nil
// is a cached structural failure. Registrations are immutable after
// construction, so neither is ever invalidated or retried.
type callSiteResult struct {
	site CallSite
	err  error
}

// CallSiteFactory compiles call-site graphs from an immutable descriptor set.
// resolvedTypes caches the outcome per requested type (success, structural
// failure, or not-found); callSiteCache holds the per-registration call sites
// keyed by (type, slot) so singular and enumerable resolutions of one
// registration share a call site. Outcomes are published with LoadOrStore, so
// the first stored result for a type wins and repeated resolutions return the
// identical call-site object. The chain passed through the resolution methods
// is call-local state; no lock is held while a graph is being built.
type CallSiteFactory struct {
	descriptors      []*Descriptor
	resolvedTypes    *syncx.Map[reflect.Type, callSiteResult]
	callSiteCache    *syncx.Map[ServiceCacheKey, callSiteResult]
	descriptorLookup map[reflect.Type]descriptorCacheItem
	genericLookup    map[reflectx.GenericDef]descriptorCacheItem
}

func (f *CallSiteFactory) Descriptors() []*Descriptor {
	return f.descriptors
}

func (f *CallSiteFactory) populate() error {
	for _, descriptor := range f.descriptors {
		if err := validateDescriptor(descriptor); err != nil {
			return err
		}

		if descriptor.Generic != nil {
			def := descriptor.Generic.Def
			f.genericLookup[def] = f.genericLookup[def].Add(descriptor)
			continue
		}

		serviceType := descriptor.ServiceType
		f.descriptorLookup[serviceType] = f.descriptorLookup[serviceType].Add(descriptor)
	}
	return nil
}

// GetCallSite returns the call-site graph for serviceType, compiling it on
// first use. Absence of a registration is not an error: the result is
// (nil, nil) and the caller decides whether that is fatal.
func (f *CallSiteFactory) GetCallSite(serviceType reflect.Type, chain *callSiteChain) (CallSite, error) {
	if res, ok := f.resolvedTypes.Load(serviceType); ok {
		return res.site, res.err
	}

	return f.createCallSite(serviceType, chain)
}

func (f *CallSiteFactory) GetCallSiteByDescriptor(descriptor *Descriptor, chain *callSiteChain) (CallSite, error) {
	if descriptor.Generic != nil {
		// an open-generic registration has no call site of its own; it is
		// compiled per closing on demand
		return nil, nil
	}

	if _, ok := f.descriptorLookup[descriptor.ServiceType]; ok {
		return f.tryCreateExact(
			descriptor,
			chain,
			f.slotFor(descriptor.ServiceType, descriptor))
	}

	return nil, errors.New("descriptorLookup didn't contain requested descriptor")
}

func (f *CallSiteFactory) createCallSite(serviceType reflect.Type, chain *callSiteChain) (CallSite, error) {
	if err := chain.CheckCircularDependency(serviceType); err != nil {
		return nil, err
	}

	chain.Add(serviceType)
	defer chain.Remove(serviceType)

	site, err := f.tryCreate(serviceType, chain)

	// A cyclic attempt reflects the current call stack, not the type itself:
	// it must not poison later resolutions reached through an acyclic path.
	// Every other outcome, including structural failures and "not found", is
	// permanent because the registration set cannot change.
	if _, circular := err.(*errorx.CircularDependencyError); circular {
		return nil, err
	}

	res, _ := f.resolvedTypes.LoadOrStore(serviceType, callSiteResult{site: site, err: err})
	return res.site, res.err
}

func (f *CallSiteFactory) tryCreate(serviceType reflect.Type, chain *callSiteChain) (CallSite, error) {
	if descriptorCache, ok := f.descriptorLookup[serviceType]; ok {
		descriptor := descriptorCache.Last()
		return f.tryCreateExact(descriptor, chain, f.slotFor(serviceType, descriptor))
	}

	if site, ok, err := f.tryCreateGeneric(serviceType, chain); ok || err != nil {
		return site, err
	}

	if serviceType.Kind() == reflect.Slice {
		return f.createSlice(serviceType, chain)
	}

	return nil, nil
}

func (f *CallSiteFactory) tryCreateExact(descriptor *Descriptor, chain *callSiteChain, slot int) (CallSite, error) {
	callSiteKey := ServiceCacheKey{descriptor.ServiceType, slot}
	if res, ok := f.callSiteCache.Load(callSiteKey); ok {
		return res.site, res.err
	}

	cache := newResultCacheWithLifetime(descriptor.Lifetime, descriptor.ServiceType, slot)

	var callSite CallSite
	var err error
	switch {
	case descriptor.Instance != nil:
		callSite = newConstantCallSite(descriptor.ServiceType, descriptor.Instance)
	case descriptor.Factory != nil:
		callSite = newFactoryCallSite(cache, descriptor.ServiceType, descriptor.Factory)
	case len(descriptor.Ctors) > 0:
		callSite, err = f.createConstructorCallSite(cache, descriptor.ServiceType, descriptor.Ctors, chain)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errorx.NewRegistrationError(descriptor.ServiceType, "the descriptor supplies no implementation")
	}

	res, _ := f.callSiteCache.LoadOrStore(callSiteKey, callSiteResult{site: callSite})
	return res.site, res.err
}

// tryCreateGeneric closes an open-generic registration against a constructed
// requested type. The middle return value reports whether a matching
// registration produced a call site; a declined binding falls through to the
// remaining strategies.
func (f *CallSiteFactory) tryCreateGeneric(serviceType reflect.Type, chain *callSiteChain) (CallSite, bool, error) {
	def, ok := reflectx.GenericDefOf(serviceType)
	if !ok {
		return nil, false, nil
	}

	descriptorCache, ok := f.genericLookup[def]
	if !ok {
		return nil, false, nil
	}

	site, err := f.tryCreateClosed(descriptorCache.Last(), serviceType, chain, DefaultSlot)
	if err != nil {
		return nil, true, err
	}
	return site, site != nil, nil
}

func (f *CallSiteFactory) tryCreateClosed(descriptor *Descriptor, serviceType reflect.Type, chain *callSiteChain, slot int) (CallSite, error) {
	// the cache key pairs the closed requested type with the slot, so two
	// closings of one open-generic registration never share an instance
	callSiteKey := ServiceCacheKey{serviceType, slot}
	if res, ok := f.callSiteCache.Load(callSiteKey); ok {
		return res.site, res.err
	}

	ctor, err := descriptor.Generic.Bind(serviceType)
	if err != nil {
		return nil, err
	}
	if ctor == nil {
		return nil, nil
	}

	ci, ok := ctor.(*ConstructorInfo)
	if !ok {
		ci = NewConstructorInfo(ctor)
	}
	if err := checkConstructor(ci, serviceType); err != nil {
		return nil, &errorx.FuncSignatureError{Message: err.Error()}
	}

	cache := newResultCacheWithLifetime(descriptor.Lifetime, serviceType, slot)
	callSite, err := f.createConstructorCallSite(cache, serviceType, []*ConstructorInfo{ci}, chain)
	if err != nil {
		return nil, err
	}

	res, _ := f.callSiteCache.LoadOrStore(callSiteKey, callSiteResult{site: callSite})
	return res.site, res.err
}

func (f *CallSiteFactory) createSlice(serviceType reflect.Type, chain *callSiteChain) (CallSite, error) {
	key := ServiceCacheKey{serviceType, DefaultSlot}
	elementType := serviceType.Elem()
	cacheLocation := CacheLocation_Root
	callSites := make([]CallSite, 0)

	if reflectx.IsConstructedGeneric(elementType) {
		// The element closes a generic definition. Direct registrations of the
		// closed type and closings of open-generic registrations are collected
		// in one pass over the full descriptor list, so element order matches
		// registration order across descriptors rather than grouping by kind.
		matches := f.descriptorsFor(elementType)

		num := len(matches)
		for i, d := range matches {
			var cs CallSite
			var err error
			if d.Generic != nil {
				cs, err = f.tryCreateClosed(d, elementType, chain, num-i-1)
			} else {
				cs, err = f.tryCreateExact(d, chain, num-i-1)
			}
			if err != nil {
				return nil, err
			}
			if cs == nil {
				// the binder declined this closing
				continue
			}

			cacheLocation = f.getCommonCacheLocation(cacheLocation, cs.Cache().Location)
			callSites = append(callSites, cs)
		}
	} else if descriptorCache, ok := f.descriptorLookup[elementType]; ok {
		num := descriptorCache.Num()
		for i := 0; i < num; i++ {
			cs, err := f.tryCreateExact(descriptorCache.Get(i), chain, num-i-1)
			if err != nil {
				return nil, err
			}

			cacheLocation = f.getCommonCacheLocation(cacheLocation, cs.Cache().Location)
			callSites = append(callSites, cs)
		}
	}

	// an empty slice is a valid, non-failing result
	resultCache := NoneResultCache
	if cacheLocation == CacheLocation_Scope || cacheLocation == CacheLocation_Root {
		resultCache = newResultCache(cacheLocation, key)
	}

	return newSliceCallSite(resultCache, elementType, util.ClipSlice(callSites)), nil
}

func (f *CallSiteFactory) createConstructorCallSite(cache ResultCache, serviceType reflect.Type, ctors []*ConstructorInfo, chain *callSiteChain) (CallSite, error) {
	if len(ctors) == 0 {
		return nil, &errorx.NoSuitableConstructorError{ImplementationType: serviceType}
	}

	if len(ctors) == 1 {
		parameters, err := f.createArgumentCallSites(serviceType, ctors[0], chain)
		if err != nil {
			return nil, err
		}
		return newConstructorCallSite(cache, serviceType, ctors[0], parameters), nil
	}

	return f.selectConstructorCallSite(cache, serviceType, ctors, chain)
}

// selectConstructorCallSite disambiguates overloaded constructor candidates.
// Candidates are walked in descending parameter count; one that fails to
// resolve a parameter is skipped, except that a circular dependency is a
// registration defect and aborts selection. The first fully-resolvable
// candidate wins; a later fully-resolvable candidate is tolerated only if the
// winner's parameter set covers it.
func (f *CallSiteFactory) selectConstructorCallSite(cache ResultCache, serviceType reflect.Type, ctors []*ConstructorInfo, chain *callSiteChain) (CallSite, error) {
	sorted := make([]*ConstructorInfo, len(ctors))
	copy(sorted, ctors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].In) > len(sorted[j].In)
	})

	var best *ConstructorInfo
	var bestParameters []CallSite
	var bestParameterTypes map[reflect.Type]struct{}

	for _, ctor := range sorted {
		parameters, err := f.createArgumentCallSites(serviceType, ctor, chain)
		if err != nil {
			if _, circular := err.(*errorx.CircularDependencyError); circular {
				return nil, err
			}
			continue
		}

		if best == nil {
			best = ctor
			bestParameters = parameters
			bestParameterTypes = make(map[reflect.Type]struct{}, len(ctor.In))
			for _, t := range ctor.In {
				bestParameterTypes[t] = struct{}{}
			}
			continue
		}

		for _, t := range ctor.In {
			if _, ok := bestParameterTypes[t]; !ok {
				return nil, &errorx.AmbiguousConstructorError{
					ImplementationType: serviceType,
					First:              best.String(),
					Second:             ctor.String(),
				}
			}
		}
	}

	if best == nil {
		return nil, &errorx.UnableToActivateError{ImplementationType: serviceType}
	}

	return newConstructorCallSite(cache, serviceType, best, bestParameters), nil
}

func (f *CallSiteFactory) createArgumentCallSites(serviceType reflect.Type, ctor *ConstructorInfo, chain *callSiteChain) ([]CallSite, error) {
	if len(ctor.In) == 0 {
		return nil, nil
	}

	callSites := make([]CallSite, len(ctor.In))
	for i, t := range ctor.In {
		cs, err := f.GetCallSite(t, chain)
		if err != nil {
			return nil, err
		}
		if cs == nil {
			defaultValue, ok := ctor.DefaultFor(i)
			if !ok {
				return nil, &errorx.UnresolvedDependencyError{ParameterType: t, ImplementationType: serviceType}
			}
			cs = newConstantCallSite(t, defaultValue)
		}
		callSites[i] = cs
	}
	return callSites, nil
}

// Add force-inserts a pre-built call site for a service type, bypassing the
// descriptor store. Used to seed the provider-identity and scope-factory call
// sites, which are not descriptor-driven.
func (f *CallSiteFactory) Add(serviceType reflect.Type, callSite CallSite) {
	f.resolvedTypes.Store(serviceType, callSiteResult{site: callSite})
}

// descriptorsFor lists every descriptor applicable to serviceType in
// registration order: exact registrations and, for a constructed generic
// type, open-generic registrations of its definition. Slot numbering is the
// reverse index in this list, shared by the singular and enumerable paths.
func (f *CallSiteFactory) descriptorsFor(serviceType reflect.Type) []*Descriptor {
	def, generic := reflectx.GenericDefOf(serviceType)

	matches := make([]*Descriptor, 0)
	for _, d := range f.descriptors {
		if d.ServiceType == serviceType || (generic && d.Generic != nil && d.Generic.Def == def) {
			matches = append(matches, d)
		}
	}
	return matches
}

func (f *CallSiteFactory) slotFor(serviceType reflect.Type, descriptor *Descriptor) int {
	if !reflectx.IsConstructedGeneric(serviceType) {
		// only exact registrations can match, and the lookup keeps them in
		// registration order
		return f.descriptorLookup[serviceType].GetSlot(descriptor)
	}

	matches := f.descriptorsFor(serviceType)
	for i, d := range matches {
		if d == descriptor {
			return len(matches) - i - 1
		}
	}
	panic(errors.New("descriptor not exist"))
}

// Determines if the specified service type is available from the Container.
func (f *CallSiteFactory) IsService(serviceType reflect.Type) bool {
	if serviceType == nil {
		return false
	}

	if _, ok := f.descriptorLookup[serviceType]; ok {
		return true
	}

	if def, ok := reflectx.GenericDefOf(serviceType); ok {
		if _, ok := f.genericLookup[def]; ok {
			return true
		}
	}

	if serviceType.Kind() == reflect.Slice {
		return true
	}

	return serviceType == ContainerType ||
		serviceType == ScopeFactoryType ||
		serviceType == IsServiceType
}

func (f *CallSiteFactory) getCommonCacheLocation(locationA CacheLocation, locationB CacheLocation) CacheLocation {
	if locationA > locationB {
		return locationA
	}
	return locationB
}

func newCallSiteFactory(descriptors []*Descriptor) (*CallSiteFactory, error) {
	d := make([]*Descriptor, len(descriptors))
	copy(d, descriptors)

	f := &CallSiteFactory{
		descriptors:      d,
		resolvedTypes:    syncx.NewMap[reflect.Type, callSiteResult](),
		callSiteCache:    syncx.NewMap[ServiceCacheKey, callSiteResult](),
		descriptorLookup: make(map[reflect.Type]descriptorCacheItem),
		genericLookup:    make(map[reflectx.GenericDef]descriptorCacheItem),
	}

	if err := f.populate(); err != nil {
		return nil, err
	}
	return f, nil
}

// descriptorCacheItem stores the descriptors registered for one lookup key,
// optimized for the common single-registration case: the overflow slice is
// only allocated for the second and later registrations.
type descriptorCacheItem struct {
	item  *Descriptor
	items []*Descriptor
}

func (dci descriptorCacheItem) Last() *Descriptor {
	if l := len(dci.items); l > 0 {
		return dci.items[l-1]
	}

	return dci.item
}

func (dci descriptorCacheItem) Num() int {
	if dci.item == nil {
		return 0
	}

	return 1 + len(dci.items)
}

func (dci descriptorCacheItem) Get(index int) *Descriptor {
	if index >= dci.Num() {
		panic("index out of range")
	}

	if index == 0 {
		return dci.item
	}

	return dci.items[index-1]
}

func (dci descriptorCacheItem) GetSlot(descriptor *Descriptor) int {
	if descriptor == dci.item {
		return dci.Num() - 1
	}

	if l := len(dci.items); l > 0 {
		for i := range dci.items {
			if descriptor == dci.items[i] {
				return l - (i + 1)
			}
		}
	}

	panic(errors.New("descriptor not exist"))
}

func (dci descriptorCacheItem) Add(descriptor *Descriptor) descriptorCacheItem {
	var newCacheItem descriptorCacheItem
	if dci.item == nil {
		newCacheItem.item = descriptor
	} else {
		newCacheItem.item = dci.item
		newCacheItem.items = append(dci.items, descriptor)
	}
	return newCacheItem
}
