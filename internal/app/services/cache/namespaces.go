package cache

import (
	"fmt"
	"time"
)

// Namespaces bundles the five cache instances the service façade and
// simulator/orchestrator/analysis layers share, each with its own
// sizing and TTL.
type Namespaces struct {
	CompiledEnv *LRUCache // keyed by sanitized EnvSpec hash, long-lived
	Analysis    *TTLCache // keyed by (function name, args hash), TTL ~10min
	Asset       *LRUCache // keyed by asset id, invalidated on mutation
	Rollout     *TTLCache // keyed by (spec hash, policy, maxSteps, seed?), TTL ~1min
	Model       *TTLCache // keyed by model URL, TTL ~1hr
}

const (
	AnalysisTTL = 10 * time.Minute
	RolloutTTL  = 1 * time.Minute
	ModelTTL    = 1 * time.Hour

	defaultCompiledEnvCapacity = 500
	defaultAssetCapacity       = 2000
)

// NewNamespaces constructs the five caches with their TTL/eviction
// policies. Capacities are tunable; zero selects the defaults.
func NewNamespaces(compiledEnvCapacity, assetCapacity int) *Namespaces {
	if compiledEnvCapacity <= 0 {
		compiledEnvCapacity = defaultCompiledEnvCapacity
	}
	if assetCapacity <= 0 {
		assetCapacity = defaultAssetCapacity
	}
	return &Namespaces{
		CompiledEnv: NewLRUCache(compiledEnvCapacity),
		Analysis:    NewTTLCache(Config{DefaultTTL: AnalysisTTL, CleanupInterval: AnalysisTTL}),
		Asset:       NewLRUCache(assetCapacity),
		Rollout:     NewTTLCache(Config{DefaultTTL: RolloutTTL, CleanupInterval: RolloutTTL}),
		Model:       NewTTLCache(Config{DefaultTTL: ModelTTL, CleanupInterval: ModelTTL}),
	}
}

// Close stops the TTL namespaces' janitor goroutines.
func (n *Namespaces) Close() {
	n.Analysis.Close()
	n.Rollout.Close()
	n.Model.Close()
}

// EnvKey builds the compiled-environment cache key from the stable hash
// of the sanitized spec.
func EnvKey(specHash string) string {
	return "env:" + specHash
}

// AnalysisKey builds the (function name, args hash) cache key for the
// analysis namespace.
func AnalysisKey(function, argsHash string) string {
	return fmt.Sprintf("analysis:%s:%s", function, argsHash)
}

// RolloutKey builds the (spec hash, policy, maxSteps, seed) cache key for
// the rollout namespace. seed is omitted from the key when hasSeed is false, so a
// caller requesting an unseeded rollout never hits a seeded entry.
func RolloutKey(specHash, policy string, maxSteps int, seed int64, hasSeed bool) string {
	if !hasSeed {
		return fmt.Sprintf("rollout:%s:%s:%d:unseeded", specHash, policy, maxSteps)
	}
	return fmt.Sprintf("rollout:%s:%s:%d:%d", specHash, policy, maxSteps, seed)
}

// ModelKey builds the model cache key from the model's URL.
func ModelKey(modelURL string) string {
	return "model:" + modelURL
}

// AssetKey builds the asset cache key from the asset id.
func AssetKey(assetID string) string {
	return "asset:" + assetID
}
