package previews

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"Artframe/internal/core/blobs"
	"Artframe/internal/core/generation"
	"Artframe/internal/core/previewcache"
	"Artframe/internal/metrics"
)

// ProduceRequest identifies one preview to resolve.
// Image is the cropped source as sent to the generation service.
type ProduceRequest struct {
	Style       Style
	Orientation Orientation
	ImageDigest string
	Image       string
	UserID      string
	Premium     bool
	Tier        string
}

// Watermark reports whether the artifact for r must be watermarked.
func (r ProduceRequest) Watermark() bool {
	return !r.Premium
}

// CacheKey returns the cache key for r at the given quality.
func (r ProduceRequest) CacheKey(quality string) CacheKey {
	return BuildCacheKey(r.Style.ID, r.Style.Version, r.ImageDigest, r.Orientation.AspectRatio(), quality, r.Watermark())
}

// IdempotencyKey returns the dedup key for r. Watermarked and clean requests
// run different pipelines, so the variant is part of the key.
func (r ProduceRequest) IdempotencyKey() IdempotencyKey {
	variant := ":clean"
	if r.Watermark() {
		variant = ":wm"
	}
	return BuildIdempotencyKey(r.Style.ID, string(r.Orientation), r.ImageDigest, r.UserID) + IdempotencyKey(variant)
}

// Service resolves preview requests: in-flight dedup, then the cache tiers,
// then generation, watermarking, upload and write-through.
type Service struct {
	cache     ArtifactCache
	generator GenerationService
	watermark WatermarkService
	uploader  ArtifactUploader
	inflight  *inflightRegistry
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the preview pipeline. All collaborators are required.
func NewService(cache ArtifactCache, generator GenerationService, watermark WatermarkService, uploader ArtifactUploader, config Config, logger *slog.Logger) (*Service, error) {
	if cache == nil || generator == nil || watermark == nil || uploader == nil {
		return nil, ErrNilDependency
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:     cache,
		generator: generator,
		watermark: watermark,
		uploader:  uploader,
		inflight:  newInflightRegistry(config.GenerationTimeout),
		config:    config,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Produce returns the artifact for req. Concurrent identical requests share
// one call; progress receives the stages of that call.
func (s *Service) Produce(ctx context.Context, req ProduceRequest, progress func(Status)) (*ArtifactRef, error) {
	cacheKey := req.CacheKey(s.config.Quality)
	idemKey := req.IdempotencyKey()

	ref, joined, err := s.inflight.Do(ctx, idemKey, func(ctx context.Context, stage func(Status)) (*ArtifactRef, error) {
		return s.produce(ctx, req, cacheKey, stage)
	}, progress)

	if joined {
		s.logger.Debug("[PREVIEW] joined in-flight request",
			"idempotency_key", string(idemKey),
			"style", req.Style.ID,
		)
	}
	return ref, err
}

func (s *Service) produce(ctx context.Context, req ProduceRequest, cacheKey CacheKey, stage func(Status)) (*ArtifactRef, error) {
	if artifact, tier, ok := s.cache.Lookup(ctx, string(cacheKey)); ok {
		s.logger.Debug("[PREVIEW] cache hit",
			"cache_key", string(cacheKey),
			"tier", string(tier),
		)
		return artifactRefFrom(artifact, tier), nil
	}

	stage(StatusGenerating)

	requestID := uuid.New().String()
	rawURL, err := s.generator.Generate(ctx, GenerationRequest{
		StyleID:      req.Style.ID,
		StyleVersion: req.Style.Version,
		Image:        req.Image,
		AspectRatio:  req.Orientation.AspectRatio(),
		Quality:      s.config.Quality,
		RequestID:    requestID,
	}, func() { stage(StatusPolling) })
	if err != nil {
		metrics.GenerationCallsTotal.WithLabelValues("error").Inc()
		s.logger.Error("[PREVIEW] generation failed",
			"style", req.Style.ID,
			"request_id", requestID,
			"error", err,
		)
		return nil, classifyUpstream(err)
	}
	metrics.GenerationCallsTotal.WithLabelValues("success").Inc()

	finalURL := rawURL
	if req.Watermark() {
		stage(StatusWatermarking)
		finalURL, err = s.watermark.Apply(ctx, rawURL)
		if err != nil {
			s.logger.Error("[PREVIEW] watermarking failed",
				"style", req.Style.ID,
				"request_id", requestID,
				"error", err,
			)
			return nil, classifyUpstream(err)
		}
	}

	upload, err := s.uploader.UploadFromURL(ctx, finalURL, s.storagePath(req.Style.ID, cacheKey),
		&blobs.UploadOptions{AppendExtension: true})
	if err != nil {
		s.logger.Error("[PREVIEW] artifact upload failed",
			"style", req.Style.ID,
			"request_id", requestID,
			"error", err,
		)
		if errors.Is(err, blobs.ErrConfiguration) {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	now := s.now()
	record := &previewcache.Record{
		CacheKey:        string(cacheKey),
		StyleID:         req.Style.ID,
		StyleVersion:    req.Style.Version,
		ImageDigest:     req.ImageDigest,
		AspectRatio:     req.Orientation.AspectRatio(),
		Quality:         s.config.Quality,
		Watermarked:     req.Watermark(),
		StoragePath:     upload.StoragePath,
		PreviewURL:      upload.PublicURL,
		CreatedAt:       now,
		LastAccessedAt:  now,
		HitCount:        1,
		SourceRequestID: requestID,
		CreatedBy:       req.UserID,
		Tier:            req.Tier,
	}
	if err := s.cache.Store(ctx, record); err != nil {
		// The blob exists; a missing metadata row only costs a future cache miss.
		s.logger.Warn("[PREVIEW] failed to persist cache metadata",
			"cache_key", string(cacheKey),
			"error", err,
		)
	}

	s.logger.Info("[PREVIEW] artifact produced",
		"style", req.Style.ID,
		"aspect_ratio", req.Orientation.AspectRatio(),
		"watermarked", req.Watermark(),
		"storage_path", upload.StoragePath,
		"request_id", requestID,
	)

	return &ArtifactRef{
		PreviewURL:  upload.PublicURL,
		Watermarked: req.Watermark(),
		StoragePath: upload.StoragePath,
		CreatedAt:   now,
		ExpiresAt:   record.TTLExpiresAt,
	}, nil
}

// storagePath is deterministic per cache key so a regenerated artifact
// overwrites its predecessor.
func (s *Service) storagePath(styleID string, key CacheKey) string {
	sum := sha256.Sum256([]byte(key))
	return path.Join(s.config.StoragePrefix, sanitizeToken(styleID), hex.EncodeToString(sum[:16]))
}

// classifyUpstream maps collaborator errors onto the pipeline's sentinels.
func classifyUpstream(err error) error {
	switch {
	case errors.Is(err, generation.ErrConfiguration):
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrConfiguration):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
}
