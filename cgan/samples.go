// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"k8s.io/klog/v2"
)

// SampleTileSize is the size of each image in the grid of samples.
const SampleTileSize = 1.5 * vg.Inch

// Generate returns images generated for the given class indices, shaped [len(classes), imageSize, imageSize, 1],
// with values in [-1, 1].
func (t *Trainer) Generate(classes []int) (*tensors.Tensor, error) {
	if len(classes) == 0 {
		return nil, errors.New("no classes given to generate images for")
	}
	labels, err := oneHotLabels(classes, t.numClasses)
	if err != nil {
		return nil, err
	}
	generated, err := t.predictExec.Exec1(labels)
	if err != nil {
		return nil, errors.WithMessage(err, "generating images")
	}
	return generated, nil
}

// ToImages converts generated images in [-1, 1], shaped [numImages, imageSize, imageSize, 1], to grayscale Go images.
func (t *Trainer) ToImages(generated *tensors.Tensor) (images []image.Image, err error) {
	rendered, err := t.renderExec.Exec1(generated)
	if err != nil {
		return nil, errors.WithMessage(err, "rendering generated images")
	}
	defer func() { _ = rendered.FinalizeAll() }()
	err = exceptions.TryCatch[error](func() {
		images = timage.ToImage().MaxValue(1.0).Batch(rendered)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "converting tensor to images")
	}
	return images, nil
}

// SampleClasses returns the class of each tile of a rows x cols grid: row r is conditioned on class r % numClasses.
func SampleClasses(rows, cols, numClasses int) []int {
	classes := make([]int, 0, rows*cols)
	for row := range rows {
		for range cols {
			classes = append(classes, row%numClasses)
		}
	}
	return classes
}

// SaveSamples generates a grid of ParamSampleRows x ParamSampleCols images and saves it to
// dir/xrays_<epoch>.png.
func (t *Trainer) SaveSamples(dir string, epoch int) error {
	rows := max(1, context.GetParamOr(t.ctx, ParamSampleRows, 5))
	cols := max(1, context.GetParamOr(t.ctx, ParamSampleCols, 5))
	generated, err := t.Generate(SampleClasses(rows, cols, t.numClasses))
	if err != nil {
		return err
	}
	defer func() { _ = generated.FinalizeAll() }()
	images, err := t.ToImages(generated)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating samples directory %q", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("xrays_%d.png", epoch))
	if err := SaveSampleGrid(images, rows, cols, path); err != nil {
		return err
	}
	klog.V(1).Infof("Saved samples to %q", path)
	return nil
}

// SaveSampleGrid draws the images in a rows x cols grid, without axes, and saves it as a PNG to path.
func SaveSampleGrid(images []image.Image, rows, cols int, path string) error {
	if len(images) < rows*cols {
		return errors.Errorf("grid of %dx%d requires %d images, got %d", rows, cols, rows*cols, len(images))
	}
	plots := make([][]*plot.Plot, rows)
	for row := range rows {
		plots[row] = make([]*plot.Plot, cols)
		for col := range cols {
			img := imaging.Grayscale(images[row*cols+col])
			bounds := img.Bounds()
			p := plot.New()
			p.HideAxes()
			p.Add(plotter.NewImage(img, 0, 0, float64(bounds.Dx()), float64(bounds.Dy())))
			plots[row][col] = p
		}
	}

	canvas := vgimg.New(vg.Length(cols)*SampleTileSize, vg.Length(rows)*SampleTileSize)
	dc := draw.New(canvas)
	tiles := draw.Tiles{Rows: rows, Cols: cols, PadX: vg.Millimeter, PadY: vg.Millimeter}
	canvases := plot.Align(plots, tiles, dc)
	for row := range rows {
		for col := range cols {
			plots[row][col].Draw(canvases[row][col])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating samples file %q", path)
	}
	if _, err = (vgimg.PngCanvas{Canvas: canvas}).WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing samples to %q", path)
	}
	return errors.Wrapf(f.Close(), "closing %q", path)
}

// ClassDirName converts a class name to the directory name used by GenerateDataset, e.g. "No Finding" -> "No_Finding".
func ClassDirName(class string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, class)
}

// GenerateDataset generates perClass images for each class and saves them as PNG files in
// dir/<class>/<class>_<index>.png. classNames maps each class index to its name.
//
// Images are generated in batches of ParamBatchSize.
func (t *Trainer) GenerateDataset(dir string, perClass int, classNames []string) error {
	if len(classNames) != t.numClasses {
		return errors.Errorf("%d class names given, but the model has %s=%d", len(classNames), ParamNumClasses, t.numClasses)
	}
	for classIdx, className := range classNames {
		name := ClassDirName(className)
		classDir := filepath.Join(dir, name)
		if err := os.MkdirAll(classDir, 0o755); err != nil {
			return errors.Wrapf(err, "creating directory %q", classDir)
		}
		// Always generate full batches, so only one graph is compiled.
		classes := slices.Repeat([]int{classIdx}, t.batchSize)
		for start := 0; start < perClass; start += t.batchSize {
			if err := t.saveGeneratedBatch(classes, classDir, name, start, min(t.batchSize, perClass-start)); err != nil {
				return errors.WithMessagef(err, "class %q", className)
			}
		}
		klog.V(1).Infof("Generated %d images of %q in %q", perClass, className, classDir)
	}
	return nil
}

func (t *Trainer) saveGeneratedBatch(classes []int, dir, prefix string, start, count int) error {
	generated, err := t.Generate(classes)
	if err != nil {
		return err
	}
	defer func() { _ = generated.FinalizeAll() }()
	images, err := t.ToImages(generated)
	if err != nil {
		return err
	}
	for ii := range count {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", prefix, start+ii))
		if err := imaging.Save(imaging.Grayscale(images[ii]), path); err != nil {
			return errors.Wrapf(err, "saving generated image %q", path)
		}
	}
	return nil
}
