// Package service holds the small contracts shared by every managed
// service: architectural descriptors, observation hooks, retry policy,
// and list-limit clamping.
package service

// Layer describes the architectural slice a service belongs to, following
// the façade -> engines -> data/external connectors layering of the studio
// backend.
type Layer string

const (
	// LayerIngress services face the outside: HTTP/WebSocket handlers and
	// the worker-callback ingestion path.
	LayerIngress Layer = "ingress"
	// LayerEngine services do the domain work: simulation, rollouts,
	// orchestration, analysis.
	LayerEngine Layer = "engine"
	// LayerData services wrap persistence: storage client, blob store,
	// caches.
	LayerData Layer = "data"
	// LayerAdapter services bridge to external providers: the compute
	// backend, model loaders.
	LayerAdapter Layer = "adapter"
)

// Descriptor advertises a service's placement and capabilities. It does not
// change runtime behavior; the /system/descriptors endpoint and operational
// tooling use it to reason about what a process is running.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}
