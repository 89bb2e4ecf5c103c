package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/r3e-labs/rlstudio/internal/app"
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/httpapi"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	a, err := app.New(app.Stores{}, nil, app.WithRuntimeConfig(app.RuntimeConfig{BlobStoreDir: t.TempDir()}))
	require.NoError(t, err)
	return a
}

func smallGridEnvSpec() envspec.Spec {
	return envspec.Spec{
		WorldKind:   envspec.WorldGrid,
		Width:       3,
		Height:      3,
		CellSize:    1,
		Agents:      []envspec.Agent{{ID: "a0", Position: envspec.Position{X: 0, Y: 0}}},
		Objects:     []envspec.Object{{ID: "goal", Type: envspec.ObjectGoal, Position: envspec.Position{X: 2, Y: 2}}},
		ActionSpace: envspec.ActionSpace{Kind: envspec.ActionSpaceDiscrete, Actions: []string{"up", "down", "left", "right"}},
		Rules: envspec.Rules{
			Rewards:      []envspec.RewardRule{{ID: "reach_goal", Reward: 10, Condition: envspec.Condition{Kind: envspec.ConditionReachGoal}}},
			Terminations: []envspec.TerminationRule{{ID: "timeout", Condition: envspec.Condition{Kind: envspec.ConditionTimeout}}},
		},
	}
}

func TestRolloutEndpointReturnsSuccessfulEpisode(t *testing.T) {
	router := httpapi.NewRouter(newTestApp(t), httpapi.Config{CORSOrigins: []string{"*"}, AuditMax: 10})

	body, _ := json.Marshal(map[string]interface{}{
		"envSpec":  smallGridEnvSpec(),
		"policy":   "greedy",
		"maxSteps": 50,
	})
	req := httptest.NewRequest(http.MethodPost, "/rollout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "goal_reached", out["terminationReason"])
}

func TestRolloutEndpointRejectsMaxStepsAboveCap(t *testing.T) {
	router := httpapi.NewRouter(newTestApp(t), httpapi.Config{CORSOrigins: []string{"*"}, AuditMax: 10})

	body, _ := json.Marshal(map[string]interface{}{
		"envSpec":  smallGridEnvSpec(),
		"policy":   "random",
		"maxSteps": 1_000_000,
	})
	req := httptest.NewRequest(http.MethodPost, "/rollout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRolloutEndpointRejectsInvalidSpec(t *testing.T) {
	router := httpapi.NewRouter(newTestApp(t), httpapi.Config{CORSOrigins: []string{"*"}, AuditMax: 10})

	spec := smallGridEnvSpec()
	spec.Rules.Rewards = nil // at least one reward rule is required

	body, _ := json.Marshal(map[string]interface{}{
		"envSpec":  spec,
		"policy":   "greedy",
		"maxSteps": 50,
	})
	req := httptest.NewRequest(http.MethodPost, "/rollout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzEndpoint(t *testing.T) {
	router := httpapi.NewRouter(newTestApp(t), httpapi.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyzeRolloutEndpoint(t *testing.T) {
	router := httpapi.NewRouter(newTestApp(t), httpapi.Config{})

	spec := smallGridEnvSpec()
	body, _ := json.Marshal(map[string]interface{}{
		"envSpec": spec,
		"steps":   []interface{}{},
	})
	req := httptest.NewRequest(http.MethodPost, "/analyze/rollout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRolloutEndpointServesRepeatRequestFromCache(t *testing.T) {
	router := httpapi.NewRouter(newTestApp(t), httpapi.Config{})

	body, _ := json.Marshal(map[string]interface{}{
		"envSpec":  smallGridEnvSpec(),
		"policy":   "greedy",
		"maxSteps": 50,
		"seed":     7,
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/rollout", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/rollout", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, second.Code)

	assert.JSONEq(t, first.Body.String(), second.Body.String())
}
