package compute

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
)

// JobRecovery configures the backend's restart budget on preemption,
// matching the original orchestrator's `resources.job_recovery` block.
type JobRecovery struct {
	MaxRestartsOnErrors int `yaml:"max_restarts_on_errors"`
}

// Resources is the compute-shape portion of the manifest.
type Resources struct {
	Accelerator string       `yaml:"accelerator,omitempty"`
	UseSpot     bool         `yaml:"use_spot,omitempty"`
	AutostopMin int          `yaml:"autostop,omitempty"`
	JobRecovery *JobRecovery `yaml:"job_recovery,omitempty"`
}

// Manifest is the SkyPilot-shaped YAML workload description the
// orchestrator hands to a Backend.Submit call.
type Manifest struct {
	Name      string            `yaml:"name"`
	Resources Resources         `yaml:"resources"`
	Envs      map[string]string `yaml:"envs"`
	Run       string            `yaml:"run"`
}

// BuildManifest compiles a RunConfig into a Manifest for the given runId.
func BuildManifest(runID string, cfg runjob.RunConfig) Manifest {
	maxRestarts := cfg.MaxRestarts
	if maxRestarts <= 0 {
		maxRestarts = runjob.DefaultMaxRestarts
	}
	metricsInterval := cfg.MetricsInterval
	if metricsInterval <= 0 {
		metricsInterval = 0
	}

	envs := map[string]string{
		"RUN_ID":           runID,
		"ENV_NAME":         cfg.EnvironmentSpec,
		"ALGORITHM":        cfg.Algorithm,
		"METRICS_INTERVAL": metricsInterval.String(),
	}
	if cfg.CheckpointBucket != "" {
		envs["CHECKPOINT_BUCKET"] = cfg.CheckpointBucket
	}

	return Manifest{
		Name: fmt.Sprintf("rlstudio-run-%s", runID),
		Resources: Resources{
			Accelerator: string(cfg.Accelerator),
			UseSpot:     cfg.Spot,
			AutostopMin: cfg.AutostopMinutes,
			JobRecovery: &JobRecovery{MaxRestartsOnErrors: maxRestarts},
		},
		Envs: envs,
		Run:  "python -m rl_studio.training.entrypoint",
	}
}

// WriteTempFile serializes the manifest to a temp YAML file and returns its
// path, for handing to Backend.Submit.
func WriteTempFile(m Manifest) (string, error) {
	out, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal workload manifest: %w", err)
	}
	f, err := os.CreateTemp("", "rlstudio-manifest-*.yaml")
	if err != nil {
		return "", fmt.Errorf("create manifest temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(out); err != nil {
		return "", fmt.Errorf("write manifest temp file: %w", err)
	}
	return f.Name(), nil
}
