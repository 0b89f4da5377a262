package di

type ServiceAccessor func(*ContainerEngineScope) (any, error)

// ContainerEngine turns a compiled call site into an accessor that produces
// instances for a scope by walking the graph through the executor.
type ContainerEngine interface {
	RealizeService(CallSite) (ServiceAccessor, error)
}

type containerEngine struct {
	container *container
}

func (engine *containerEngine) RealizeService(callSite CallSite) (ServiceAccessor, error) {
	return func(scope *ContainerEngineScope) (any, error) {
		return CallSiteResolverInstance.Resolve(callSite, scope)
	}, nil
}

func newContainerEngine(c *container) ContainerEngine {
	return &containerEngine{container: c}
}
