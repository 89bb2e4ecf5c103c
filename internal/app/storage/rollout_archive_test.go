package storage

import (
	"context"
	"testing"

	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

func TestPutGetRolloutRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBlobStore: %v", err)
	}

	r := episode.Rollout{
		EnvID:             "env-1",
		RolloutID:         "rollout-1",
		TotalReward:       3.5,
		EpisodeLength:     2,
		Success:           true,
		TerminationReason: "goal_reached",
		Steps: []episode.StepRecord{
			{Reward: 1, Done: false},
			{Reward: 2.5, Done: true},
		},
	}

	meta, err := PutRollout(ctx, store, r)
	if err != nil {
		t.Fatalf("PutRollout: %v", err)
	}
	if meta.RolloutID != "rollout-1" || meta.EpisodeLength != 2 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	got, err := GetRollout(ctx, store, "env-1", "rollout-1")
	if err != nil {
		t.Fatalf("GetRollout: %v", err)
	}
	if got.TotalReward != r.TotalReward || len(got.Steps) != len(r.Steps) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := DeleteRollout(ctx, store, "env-1", "rollout-1"); err != nil {
		t.Fatalf("DeleteRollout: %v", err)
	}
	if _, err := GetRollout(ctx, store, "env-1", "rollout-1"); err == nil {
		t.Fatal("expected error reading deleted rollout")
	}
}

func TestRolloutKeyShape(t *testing.T) {
	want := "rollouts/env-1/rollout-1.json.gz"
	if got := RolloutKey("env-1", "rollout-1"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
