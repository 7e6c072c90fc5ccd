package assets

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// Placeholder dimensions match the output frame so ffmpeg never upscales.
const (
	placeholderWidth  = 1080
	placeholderHeight = 1920
)

// placeholderPalette holds muted backgrounds a solid-color frame can use
// without looking like an error screen.
var placeholderPalette = []color.RGBA{
	{R: 0x2b, G: 0x3a, B: 0x55, A: 0xff}, // slate blue
	{R: 0x3d, G: 0x2b, B: 0x4f, A: 0xff}, // deep plum
	{R: 0x1f, G: 0x45, B: 0x3e, A: 0xff}, // pine green
	{R: 0x4a, G: 0x32, B: 0x28, A: 0xff}, // umber
	{R: 0x26, G: 0x33, B: 0x3f, A: 0xff}, // charcoal blue
	{R: 0x44, G: 0x3a, B: 0x24, A: 0xff}, // olive brown
}

// WritePlaceholder renders a solid-color PNG into dir, with the color picked
// deterministically from the cache key so retries of the same scene produce
// the same frame. This is the terminal rung of the resolution chain and must
// not depend on anything external.
func WritePlaceholder(dir, cacheKey string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create asset dir: %w", err)
	}

	path := filepath.Join(dir, cacheKey+"_placeholder.png")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	fill := placeholderPalette[paletteIndex(cacheKey)]
	for y := 0; y < placeholderHeight; y++ {
		for x := 0; x < placeholderWidth; x++ {
			img.SetRGBA(x, y, fill)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create placeholder file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to encode placeholder: %w", err)
	}

	return path, nil
}

func paletteIndex(cacheKey string) int {
	var sum int
	for _, b := range []byte(cacheKey) {
		sum += int(b)
	}
	return sum % len(placeholderPalette)
}
