package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"

	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// RolloutMetadata is the small summary kept alongside a gzip-compressed
// rollout blob, so list views don't need to inflate every archived rollout.
type RolloutMetadata struct {
	EnvID         string  `json:"envId"`
	RolloutID     string  `json:"rolloutId"`
	EpisodeLength int     `json:"episodeLength"`
	TotalReward   float64 `json:"totalReward"`
}

// RolloutKey builds the BlobStore key for a rollout archive:
// rollouts/{envId}/{rolloutId}.json.gz.
func RolloutKey(envID, rolloutID string) string {
	return fmt.Sprintf("rollouts/%s/%s.json.gz", envID, rolloutID)
}

// PutRollout gzip-compresses a rollout's JSON encoding and writes it to the
// blob store under its deterministic key, returning the metadata record a
// caller would index alongside it.
func PutRollout(ctx context.Context, store BlobStore, r episode.Rollout) (RolloutMetadata, error) {
	meta := RolloutMetadata{
		EnvID:         r.EnvID,
		RolloutID:     r.RolloutID,
		EpisodeLength: r.EpisodeLength,
		TotalReward:   r.TotalReward,
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return meta, apperrors.InvalidInput("rollout", "not JSON-encodable: "+err.Error())
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return meta, apperrors.External("rollout-archive", err)
	}
	if err := gz.Close(); err != nil {
		return meta, apperrors.External("rollout-archive", err)
	}

	if err := store.Put(ctx, RolloutKey(r.EnvID, r.RolloutID), buf.Bytes()); err != nil {
		return meta, err
	}
	return meta, nil
}

// GetRollout reads and inflates an archived rollout.
func GetRollout(ctx context.Context, store BlobStore, envID, rolloutID string) (episode.Rollout, error) {
	var out episode.Rollout

	data, err := store.Get(ctx, RolloutKey(envID, rolloutID))
	if err != nil {
		return out, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return out, apperrors.External("rollout-archive", err)
	}
	defer gz.Close()

	if err := json.NewDecoder(gz).Decode(&out); err != nil {
		return out, apperrors.External("rollout-archive", err)
	}
	return out, nil
}

// DeleteRollout removes an archived rollout's blob.
func DeleteRollout(ctx context.Context, store BlobStore, envID, rolloutID string) error {
	return store.Delete(ctx, RolloutKey(envID, rolloutID))
}
