// Package images handles uploaded photographs: validation, EXIF orientation
// correction, downscaling and persistence.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

const (
	// maxDimension is the longest edge after downscaling. Vision models gain
	// nothing from larger inputs and tokens are billed per tile.
	maxDimension = 1600
	jpegQuality  = 85
)

// ErrNotImage is returned when uploaded bytes are not a supported image.
var ErrNotImage = fmt.Errorf("uploaded file is not an image")

// ErrTooLarge is returned when an upload exceeds the configured size cap.
var ErrTooLarge = fmt.Errorf("uploaded file exceeds the size limit")

// Saver persists image bytes under an ID.
type Saver interface {
	SaveImage(ctx context.Context, id, contentType string, data []byte) error
}

// Store validates, normalizes and persists uploads, handing back the public
// URL the model will later fetch.
type Store struct {
	db       Saver
	baseURL  string
	maxBytes int64
}

func NewStore(db Saver, baseURL string, maxBytes int64) *Store {
	return &Store{db: db, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}
}

// Save reads one upload, normalizes it and persists it. Returns the image ID
// and its public URL.
func (s *Store) Save(ctx context.Context, r io.Reader) (string, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", "", ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", "", ErrNotImage
	}

	processed, outType, err := normalize(data, contentType)
	if err != nil {
		// Undecodable but sniffed as an image (e.g. webp): store as uploaded.
		log.Warnf("could not normalize %s upload, storing original: %v", contentType, err)
		processed, outType = data, contentType
	}

	id := uuid.New().String()
	if err := s.db.SaveImage(ctx, id, outType, processed); err != nil {
		return "", "", fmt.Errorf("failed to save image: %w", err)
	}
	return id, s.baseURL + "/api/v1/images/" + id, nil
}

// normalize decodes, corrects EXIF orientation, downscales and re-encodes.
func normalize(data []byte, contentType string) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	img = orient(img, readOrientation(data))

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxDimension || h > maxDimension {
		img = downscale(img, w, h)
	}

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// readOrientation extracts the EXIF orientation tag, 1 when absent.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// orient rewrites pixels so the stored image displays upright without EXIF.
func orient(img image.Image, orientation int) image.Image {
	if orientation <= 1 {
		return img
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var out *image.RGBA
	if orientation >= 5 {
		out = image.NewRGBA(image.Rect(0, 0, h, w))
	} else {
		out = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			switch orientation {
			case 2: // mirrored horizontally
				out.Set(w-1-x, y, c)
			case 3: // rotated 180
				out.Set(w-1-x, h-1-y, c)
			case 4: // mirrored vertically
				out.Set(x, h-1-y, c)
			case 5: // mirrored then rotated 270 CW
				out.Set(y, x, c)
			case 6: // rotated 90 CW
				out.Set(h-1-y, x, c)
			case 7: // mirrored then rotated 90 CW
				out.Set(h-1-y, w-1-x, c)
			case 8: // rotated 270 CW
				out.Set(y, w-1-x, c)
			}
		}
	}
	return out
}

// downscale resizes so the longest edge is maxDimension, preserving aspect.
func downscale(img image.Image, w, h int) image.Image {
	var nw, nh int
	if w >= h {
		nw = maxDimension
		nh = h * maxDimension / w
	} else {
		nh = maxDimension
		nw = w * maxDimension / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
