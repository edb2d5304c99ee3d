package previews

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/png" // Register PNG decoder

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"Artframe/internal/core/blobs"
)

// SourceImage is the customer photo a session previews styles against.
// Digest is the hex SHA-256 of Data.
type SourceImage struct {
	Data        []byte
	ContentType string
	Digest      string
}

// NewSourceImage digests data and checks it is a JPEG, PNG or WebP image.
func NewSourceImage(data []byte) (*SourceImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrInvalidSource)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	var contentType string
	switch format {
	case "jpeg":
		contentType = "image/jpeg"
	case "png":
		contentType = "image/png"
	case "webp":
		contentType = "image/webp"
	default:
		return nil, fmt.Errorf("%w: unsupported format %s", ErrInvalidSource, format)
	}

	sum := sha256.Sum256(data)
	return &SourceImage{
		Data:        data,
		ContentType: contentType,
		Digest:      hex.EncodeToString(sum[:]),
	}, nil
}

// CroppedImage is a source image cut to an orientation, held as a JPEG data URI.
type CroppedImage struct {
	Orientation Orientation
	Width       int
	Height      int
	DataURI     string
}

// Cropper cuts source images to an orientation's aspect ratio.
type Cropper struct {
	maxDimension int
	quality      int
}

// NewCropper creates a cropper whose output's longest side is at most maxDimension.
func NewCropper(maxDimension, jpegQuality int) *Cropper {
	if maxDimension <= 0 {
		maxDimension = 1024
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	return &Cropper{maxDimension: maxDimension, quality: jpegQuality}
}

// Crop center-crops src to the orientation and encodes the result as JPEG.
// The crop never exceeds the source in either dimension.
func (c *Cropper) Crop(src *SourceImage, orientation Orientation) (*CroppedImage, error) {
	if src == nil {
		return nil, ErrNoSource
	}

	img, err := imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", ErrInvalidSource, err)
	}

	bounds := img.Bounds()
	longSide := min(c.maxDimension, orientation.fitLongSide(bounds.Dx(), bounds.Dy()))
	width, height := orientation.Dimensions(longSide)
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: image too small to crop", ErrInvalidSource)
	}

	cropped := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return nil, fmt.Errorf("%w: failed to encode crop: %v", ErrInvalidSource, err)
	}

	return &CroppedImage{
		Orientation: orientation,
		Width:       width,
		Height:      height,
		DataURI:     blobs.EncodeDataURI("image/jpeg", buf.Bytes()),
	}, nil
}
