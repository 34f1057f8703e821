// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Small model used in tests: 8x8 images, 3 classes.
const (
	testImageSize  = 8
	testNumClasses = 3
	testLatentDim  = 16
	testBatchSize  = 4
)

func newTestContext() *context.Context {
	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamImageSize:      testImageSize,
		ParamNumClasses:     testNumClasses,
		ParamLatentDim:      testLatentDim,
		ParamGenHiddenDims:  []int{16, 32},
		ParamDiscHiddenDims: []int{16, 16, 16},
		ParamBatchSize:      testBatchSize,
		ParamTrainEpochs:    3,
		ParamSampleRows:     3,
		ParamSampleCols:     2,
		ParamSeed:           42,
	})
	return ctx
}

// testBatch returns a batch of images in [-0.5, 0.5] and the one-hot labels of classes 0, 1, 2, 0, ...
func testBatch(t *testing.T, batchSize int) (images, labels *tensors.Tensor) {
	flat := make([]float32, batchSize*testImageSize*testImageSize)
	for ii := range flat {
		flat[ii] = float32(ii%17)/16 - 0.5
	}
	images = tensors.FromFlatDataAndDimensions(flat, batchSize, testImageSize, testImageSize, 1)
	classes := make([]int, batchSize)
	for ii := range classes {
		classes[ii] = ii % testNumClasses
	}
	labels, err := oneHotLabels(classes, testNumClasses)
	require.NoError(t, err)
	return
}

func TestGeneratorGraph(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	_, labels := testBatch(t, testBatchSize)
	exec, err := context.NewExec(backend, ctx, func(ctx *context.Context, labels *Node) *Node {
		noise := ctx.RandomNormal(labels.Graph(), shapes.Make(dtypes.Float32, testBatchSize, testLatentDim))
		return GeneratorGraph(ctx, noise, labels)
	})
	require.NoError(t, err)
	generated, err := exec.Exec1(labels)
	require.NoError(t, err)
	assert.Equal(t, []int{testBatchSize, testImageSize, testImageSize, 1}, generated.Shape().Dimensions)
	for _, v := range tensors.MustCopyFlatData[float32](generated) {
		require.GreaterOrEqual(t, v, float32(-1))
		require.LessOrEqual(t, v, float32(1))
	}
	assert.Greater(t, ParamCount(ctx.In(GeneratorScope)), 0)
	assert.Equal(t, 0, ParamCount(ctx.In(DiscriminatorScope)))
}

func TestDiscriminatorGraph(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	images, labels := testBatch(t, testBatchSize)
	exec, err := context.NewExec(backend, ctx, func(ctx *context.Context, images, labels *Node) *Node {
		return DiscriminatorGraph(ctx, images, labels)
	})
	require.NoError(t, err)
	logits, err := exec.Exec1(images, labels)
	require.NoError(t, err)
	assert.Equal(t, []int{testBatchSize, 1}, logits.Shape().Dimensions)

	// Embedding 3x64, dense layers 64->16->16->16 and the output 16->1, all with biases.
	want := 3*64 + (64*16 + 16) + 2*(16*16+16) + (16 + 1)
	assert.Equal(t, want, ParamCount(ctx.In(DiscriminatorScope)))
}

func TestOneHotLabels(t *testing.T) {
	labels, err := oneHotLabels([]int{2, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0, 1}, {1, 0, 0}}, labels.Value())

	_, err = oneHotLabels([]int{0, 3}, 3)
	require.Error(t, err)
	_, err = oneHotLabels([]int{-1}, 3)
	require.Error(t, err)
}

// zeroEmbeddingRow sets the label embedding of class, in the given network scope, to zeros.
func zeroEmbeddingRow(t *testing.T, ctx *context.Context, networkScope string, class int) {
	v := ctx.GetVariableByScopeAndName(context.RootScope+networkScope+"/label_embedding", "embeddings")
	require.NotNil(t, v, "label embedding of %q not created", networkScope)
	dims := v.Shape().Dimensions
	flat := tensors.MustCopyFlatData[float32](v.MustValue())
	for ii := range dims[1] {
		flat[class*dims[1]+ii] = 0
	}
	require.NoError(t, v.SetValue(tensors.FromFlatDataAndDimensions(flat, dims...)))
}

func TestZeroLabelEmbedding(t *testing.T) {
	t.Run("Generator", func(t *testing.T) {
		ctx := newTestContext()
		trainer := newTestTrainer(t, ctx)
		require.NoError(t, trainer.BuildModels())
		zeroEmbeddingRow(t, ctx, GeneratorScope, 1)

		// The noise is multiplied by the zero embedding, so all images of class 1 are the same.
		generated, err := trainer.Generate([]int{1, 1, 0, 0})
		require.NoError(t, err)
		images := generated.Value().([][][][]float32)
		assert.Equal(t, images[0], images[1])
		assert.NotEqual(t, images[2], images[3])
	})

	t.Run("Discriminator", func(t *testing.T) {
		backend := graphtest.BuildTestBackend()
		ctx := newTestContext()
		exec, err := context.NewExec(backend, ctx, func(ctx *context.Context, images, labels *Node) *Node {
			return DiscriminatorGraph(ctx, images, labels)
		})
		require.NoError(t, err)
		images, _ := testBatch(t, 2)

		logitsFor := func(class int) []float32 {
			labels, err := oneHotLabels([]int{class, class}, testNumClasses)
			require.NoError(t, err)
			logits, err := exec.Exec1(images, labels)
			require.NoError(t, err)
			return tensors.MustCopyFlatData[float32](logits)
		}
		before := logitsFor(1)
		assert.NotEqual(t, before[0], before[1])

		// With a zero embedding the first dense layer only sees zeros: the image is ignored.
		zeroEmbeddingRow(t, ctx, DiscriminatorScope, 1)
		after := logitsFor(1)
		assert.Equal(t, after[0], after[1])
		other := logitsFor(0)
		assert.NotEqual(t, other[0], other[1])
	})
}

func TestBatchOfOne(t *testing.T) {
	ctx := newTestContext()
	ctx.SetParam(ParamBatchSize, 1)
	trainer := newTestTrainer(t, ctx)
	require.NoError(t, trainer.BuildModels())
	for class := range testNumClasses {
		generated, err := trainer.Generate([]int{class})
		require.NoError(t, err)
		assert.Equal(t, []int{1, testImageSize, testImageSize, 1}, generated.Shape().Dimensions)
	}

	images, labels := testBatch(t, 1)
	m, err := trainer.TrainStep(images, labels)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(m.DLoss) || math.IsNaN(m.GLoss), "metrics %+v", m)
}
