// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xrays

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestImage writes a gray width x height PNG where the left half has value lo and the right half has value hi.
func writeTestImage(t *testing.T, path string, width, height int, lo, hi uint8) {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := lo
			if x >= width/2 {
				v = hi
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.png")
	writeTestImage(t, path, 16, 16, 0, 255)

	pixels, err := LoadImage(path, 8)
	require.NoError(t, err)
	require.Len(t, pixels, 64)

	var sum float64
	for _, v := range pixels {
		sum += float64(v)
	}
	assert.InDelta(t, 0.0, sum/64, 1e-5, "images must be zero-mean")
	assert.InDelta(t, -0.5, pixels[0], 0.01)
	assert.InDelta(t, 0.5, pixels[7], 0.01)

	_, err = LoadImage(filepath.Join(dir, "missing.png"), 8)
	require.Error(t, err)
}

func TestImageToPixelsConstant(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for ii := range img.Pix {
		img.Pix[ii] = 200
	}
	pixels := ImageToPixels(img, 4)
	for _, v := range pixels {
		assert.InDelta(t, 0.0, v, 1e-6)
	}
}

func TestLoadImages(t *testing.T) {
	dir := t.TempDir()
	var entries []Entry
	for ii, name := range []string{"a.png", "b.png", "c.png"} {
		path := filepath.Join(dir, name)
		writeTestImage(t, path, 8, 8, uint8(10*ii), uint8(100+10*ii))
		entries = append(entries, Entry{Path: path, Label: "x"})
	}
	flat, err := LoadImages(context.Background(), entries, 8, 2)
	require.NoError(t, err)
	require.Len(t, flat, 3*64)
	for ii, e := range entries {
		want, err := LoadImage(e.Path, 8)
		require.NoError(t, err)
		assert.Equal(t, want, flat[ii*64:(ii+1)*64])
	}

	entries = append(entries, Entry{Path: filepath.Join(dir, "missing.png"), Label: "x"})
	_, err = LoadImages(context.Background(), entries, 8, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.png")
}
