package entity

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"golang.org/x/image/draw"
)

// FetchAvatar downloads a user's avatar image and scales it to size×size
// pixels. A user without an avatar hash has no image to fetch.
func FetchAvatar(ctx context.Context, client *http.Client, baseURL string, user User, size int) (image.Image, error) {
	if user.Avatar == "" {
		return nil, errors.New("entity: user has no avatar")
	}
	if size <= 0 {
		size = 128
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	url := fmt.Sprintf("%s/avatars/%s/%s.png", baseURL, user.ID, user.Avatar)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch avatar: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch avatar: unexpected status %d", resp.StatusCode)
	}

	src, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}

	return Scale(src, size, size), nil
}

// Scale resizes an image with approximate bi-linear interpolation, which is
// a good speed/quality trade-off for avatar thumbnails.
func Scale(src image.Image, width, height int) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// EncodePNG writes img as PNG, used by the CLI to save avatars to disk.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
