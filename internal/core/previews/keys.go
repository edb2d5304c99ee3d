package previews

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// CacheKey is the content address of a generated preview.
type CacheKey string

// IdempotencyKey identifies one logical preview request from one requester.
type IdempotencyKey string

const (
	cacheKeyPrefix       = "preview:v1"
	idempotencyKeyPrefix = "idem:preview"

	// UnauthenticatedIdentity stands in for requests without a user id.
	UnauthenticatedIdentity = "unauthenticated"

	identityHashLength = 16
	digestLength       = 32
	fallbackToken      = "unknown"
)

// BuildCacheKey derives the cache key from the semantic request parameters.
// Every component is escaped, so distinct inputs never collide, and the full
// image digest is kept.
func BuildCacheKey(styleID, styleVersion, imageDigest, aspectRatio, quality string, watermark bool) CacheKey {
	wm := "raw"
	if watermark {
		wm = "wm"
	}

	parts := []string{
		cacheKeyPrefix,
		url.QueryEscape(styleID),
		url.QueryEscape(styleVersion),
		url.QueryEscape(aspectRatio),
		url.QueryEscape(quality),
		wm,
		url.QueryEscape(imageDigest),
	}
	return CacheKey(strings.Join(parts, ":"))
}

// BuildIdempotencyKey derives the dedup key for in-flight requests.
// An empty userID is treated as the unauthenticated sentinel identity.
//
// Layout: idem:preview:{identity hash}:{style}:{orientation}:{digest}
func BuildIdempotencyKey(styleID, orientation, imageDigest, userID string) IdempotencyKey {
	identity := userID
	if identity == "" {
		identity = UnauthenticatedIdentity
	}
	sum := sha256.Sum256([]byte(identity))
	identityHash := hex.EncodeToString(sum[:])[:identityHashLength]

	parts := []string{
		idempotencyKeyPrefix,
		identityHash,
		sanitizeToken(styleID),
		sanitizeToken(orientation),
		fitDigest(imageDigest),
	}
	return IdempotencyKey(strings.Join(parts, ":"))
}

// sanitizeToken lowercases s and replaces anything outside [a-z0-9_-] with '_'.
func sanitizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallbackToken
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// fitDigest truncates or right-pads the digest with '0' to digestLength.
func fitDigest(digest string) string {
	digest = strings.ToLower(digest)
	if len(digest) >= digestLength {
		return digest[:digestLength]
	}
	return digest + strings.Repeat("0", digestLength-len(digest))
}
