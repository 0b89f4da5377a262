package di

import "reflect"

// Lifetime annotation on a call-site: where the produced instance is stored by
// the executor, if anywhere.
type CacheLocation byte

const (
	// Singleton: stored on the root scope.
	CacheLocation_Root CacheLocation = iota
	// Scoped: stored on the resolving scope.
	CacheLocation_Scope
	// Transient: never stored, only tracked for disposal.
	CacheLocation_Dispose
	// Not stored at all (constants, provider identity).
	CacheLocation_None
)

var NoneResultCache = newResultCache(CacheLocation_None, EmptyServiceCacheKey)

// ServiceCacheKey is the identity under which the instance stores decide
// whether two resolutions share one produced instance. For a closing of an
// open-generic registration the ServiceType is the closed requested type, so
// distinct closings of one registration never collide.
type ServiceCacheKey struct {
	ServiceType reflect.Type

	// Reverse index of the service when resolved in slice where default instance gets slot 0.
	Slot int
}

var EmptyServiceCacheKey = ServiceCacheKey{nil, 0}

type ResultCache struct {
	Location CacheLocation
	Key      ServiceCacheKey
}

func newResultCache(loc CacheLocation, key ServiceCacheKey) ResultCache {
	return ResultCache{
		Location: loc,
		Key:      key,
	}
}

func newResultCacheWithLifetime(lifetime Lifetime, typ reflect.Type, slot int) ResultCache {
	loc := CacheLocation_None
	switch lifetime {
	case Lifetime_Singleton:
		loc = CacheLocation_Root
	case Lifetime_Scoped:
		loc = CacheLocation_Scope
	case Lifetime_Transient:
		loc = CacheLocation_Dispose
	}

	return ResultCache{
		Location: loc,
		Key:      ServiceCacheKey{typ, slot},
	}
}
