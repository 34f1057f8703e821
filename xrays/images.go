// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xrays

import (
	"context"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// LoadImage reads the image in path and returns its single channel pixels, resized to size x size,
// in row-major order.
//
// Values are scaled to [0, 1] and then the mean of the image is subtracted, so each image has zero mean.
func LoadImage(path string, size int) ([]float32, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading image %q", path)
	}
	return ImageToPixels(img, size), nil
}

// ImageToPixels converts img to grayscale, resizes it to size x size and normalizes it as described in LoadImage.
func ImageToPixels(img image.Image, size int) []float32 {
	gray := imaging.Grayscale(img)
	if gray.Bounds().Dx() != size || gray.Bounds().Dy() != size {
		gray = imaging.Resize(gray, size, size, imaging.Linear)
	}
	pixels := make([]float32, size*size)
	var sum float64
	for y := 0; y < size; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+4*size]
		for x := 0; x < size; x++ {
			// All RGB channels hold the same value after Grayscale: take the first one.
			v := float32(row[4*x]) / 255.0
			pixels[y*size+x] = v
			sum += float64(v)
		}
	}
	mean := float32(sum / float64(len(pixels)))
	for ii := range pixels {
		pixels[ii] -= mean
	}
	return pixels
}

// LoadImages loads the images of all entries in parallel, using at most parallelism goroutines
// (if <= 0 it uses runtime.NumCPU()).
//
// It returns the flat concatenation of the images, in the same order as entries.
// The first error cancels loading the remaining images.
func LoadImages(ctx context.Context, entries []Entry, size, parallelism int) ([]float32, error) {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	imageLen := size * size
	flat := make([]float32, len(entries)*imageLen)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)
	for idx, entry := range entries {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pixels, err := LoadImage(entry.Path, size)
			if err != nil {
				return errors.WithMessagef(err, "manifest entry #%d", idx)
			}
			copy(flat[idx*imageLen:(idx+1)*imageLen], pixels)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return flat, nil
}
