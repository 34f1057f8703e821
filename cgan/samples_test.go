// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleClasses(t *testing.T) {
	assert.Equal(t, []int{0, 0, 1, 1, 0, 0}, SampleClasses(3, 2, 2))
	assert.Equal(t, []int{0, 1, 2}, SampleClasses(3, 1, 5))
	assert.Empty(t, SampleClasses(0, 4, 2))
}

func TestClassDirName(t *testing.T) {
	assert.Equal(t, "No_Finding", ClassDirName("No Finding"))
	assert.Equal(t, "Effusion", ClassDirName("Effusion"))
	assert.Equal(t, "a_b_c", ClassDirName("a/b:c"))
}

func TestGenerate(t *testing.T) {
	trainer := newTestTrainer(t, newTestContext())
	generated, err := trainer.Generate([]int{0, 1, 2, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{5, testImageSize, testImageSize, 1}, generated.Shape().Dimensions)

	_, err = trainer.Generate(nil)
	require.Error(t, err)
	_, err = trainer.Generate([]int{testNumClasses})
	require.Error(t, err)
}

func TestToImages(t *testing.T) {
	trainer := newTestTrainer(t, newTestContext())
	generated := tensors.FromFlatDataAndDimensions([]float32{-1, 0, 1, 2}, 1, 2, 2, 1)
	images, err := trainer.ToImages(generated)
	require.NoError(t, err)
	require.Len(t, images, 1)
	img := images[0]
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	gray := func(x, y int) uint8 { return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y }
	assert.Equal(t, uint8(0), gray(0, 0))
	assert.InDelta(t, 128, int(gray(1, 0)), 1)
	assert.Equal(t, uint8(255), gray(0, 1))
	// Values above 1 are clipped.
	assert.Equal(t, uint8(255), gray(1, 1))
}

func TestSaveSampleGrid(t *testing.T) {
	var images []image.Image
	for ii := range 6 {
		img := image.NewGray(image.Rect(0, 0, 4, 4))
		for jj := range img.Pix {
			img.Pix[jj] = uint8(40 * ii)
		}
		images = append(images, img)
	}
	path := filepath.Join(t.TempDir(), "grid.png")
	require.NoError(t, SaveSampleGrid(images, 2, 3, path))
	grid, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Greater(t, grid.Bounds().Dx(), grid.Bounds().Dy())

	require.Error(t, SaveSampleGrid(images, 3, 3, path))
}

func TestSaveSamples(t *testing.T) {
	trainer := newTestTrainer(t, newTestContext())
	dir := filepath.Join(t.TempDir(), "images")
	require.NoError(t, trainer.SaveSamples(dir, 7))
	assert.FileExists(t, filepath.Join(dir, "xrays_7.png"))
}

func TestGenerateDataset(t *testing.T) {
	trainer := newTestTrainer(t, newTestContext())
	dir := t.TempDir()
	classNames := []string{"Atelectasis", "No Finding", "Effusion"}
	const perClass = testBatchSize + 1
	require.NoError(t, trainer.GenerateDataset(dir, perClass, classNames))
	for _, className := range classNames {
		entries, err := os.ReadDir(filepath.Join(dir, ClassDirName(className)))
		require.NoError(t, err)
		assert.Len(t, entries, perClass, "class %q", className)
	}
	assert.FileExists(t, filepath.Join(dir, "No_Finding", "No_Finding_4.png"))
	img, err := imaging.Open(filepath.Join(dir, "Effusion", "Effusion_0.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, testImageSize, testImageSize), img.Bounds())

	require.Error(t, trainer.GenerateDataset(dir, 1, classNames[:2]))
}
