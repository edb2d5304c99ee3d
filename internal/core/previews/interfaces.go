package previews

import (
	"context"

	"Artframe/internal/core/blobs"
	"Artframe/internal/core/generation"
	"Artframe/internal/core/previewcache"
)

// GenerationRequest is the payload sent to the generation service.
type GenerationRequest = generation.Request

// GenerationService produces a raw artifact for a cropped source image.
// onPolling is called once if the service switches to submit-then-poll.
type GenerationService interface {
	Generate(ctx context.Context, req GenerationRequest, onPolling func()) (string, error)
}

// WatermarkService returns the URL of a watermarked copy of an artifact.
type WatermarkService interface {
	Apply(ctx context.Context, artifactURL string) (string, error)
}

// ArtifactUploader copies an artifact into durable storage.
type ArtifactUploader interface {
	UploadFromURL(ctx context.Context, sourceURL, storagePath string, opts *blobs.UploadOptions) (*blobs.UploadResult, error)
}

// ArtifactCache is the two-tier preview cache.
type ArtifactCache interface {
	Lookup(ctx context.Context, key string) (*previewcache.Artifact, previewcache.Tier, bool)
	Store(ctx context.Context, record *previewcache.Record) error
}

// Producer resolves a preview request to an artifact, from cache or by generating it.
type Producer interface {
	Produce(ctx context.Context, req ProduceRequest, progress func(Status)) (*ArtifactRef, error)
}
