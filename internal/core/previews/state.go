package previews

import (
	"time"

	"Artframe/internal/core/previewcache"
)

// Status is the lifecycle position of one style's preview.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusPending      Status = "pending"
	StatusGenerating   Status = "generating"
	StatusPolling      Status = "polling"
	StatusWatermarking Status = "watermarking"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

// InFlight reports whether s is between pending and a settled state.
func (s Status) InFlight() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusPolling, StatusWatermarking:
		return true
	default:
		return false
	}
}

// Settled reports whether s is ready or error.
func (s Status) Settled() bool {
	return s == StatusReady || s == StatusError
}

// transitions lists the permitted moves out of each status. Reset to idle is
// allowed from anywhere and handled separately.
var transitions = map[Status][]Status{
	StatusIdle:         {StatusPending},
	StatusPending:      {StatusGenerating, StatusReady, StatusError, StatusPending},
	StatusGenerating:   {StatusPolling, StatusWatermarking, StatusReady, StatusError, StatusPending},
	StatusPolling:      {StatusWatermarking, StatusReady, StatusError, StatusPending},
	StatusWatermarking: {StatusReady, StatusError, StatusPending},
	StatusReady:        {StatusPending},
	StatusError:        {StatusPending},
}

// CanTransition reports whether from -> to is permitted.
func CanTransition(from, to Status) bool {
	if to == StatusIdle {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ArtifactRef is the ready artifact of a preview. CacheTier is "hot" or
// "persistent" when the artifact was served from cache; Crop records the
// orientation and size a pass-through source was cut to.
type ArtifactRef struct {
	PreviewURL  string    `json:"previewUrl"`
	Watermarked bool      `json:"watermarked"`
	StoragePath string    `json:"storagePath,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CacheTier   string    `json:"cacheTier,omitempty"`
	Crop        *CropInfo `json:"crop,omitempty"`
}

// CropInfo is the provenance of a pass-through artifact.
type CropInfo struct {
	Orientation Orientation `json:"orientation"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
}

func artifactRefFrom(a *previewcache.Artifact, tier previewcache.Tier) *ArtifactRef {
	return &ArtifactRef{
		PreviewURL:  a.PreviewURL,
		Watermarked: a.Watermarked,
		StoragePath: a.StoragePath,
		CreatedAt:   a.CreatedAt,
		ExpiresAt:   a.ExpiresAt,
		CacheTier:   string(tier),
	}
}

// PreviewState is the observable state of one style's preview.
// Stale is set on settled states computed for an orientation that is no
// longer the live one; stale states are not authoritative.
type PreviewState struct {
	StyleID     string       `json:"styleId"`
	Status      Status       `json:"status"`
	Orientation Orientation  `json:"orientation,omitempty"`
	Artifact    *ArtifactRef `json:"artifact,omitempty"`
	Error       string       `json:"error,omitempty"`
	Stale       bool         `json:"stale"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
