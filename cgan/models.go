// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
)

const (
	// GeneratorScope is the context scope holding the generator variables.
	GeneratorScope = "generator"

	// DiscriminatorScope is the context scope holding the discriminator variables.
	DiscriminatorScope = "discriminator"
)

// classIndices converts one-hot labels shaped [batchSize, numClasses] to class indices shaped [batchSize, 1],
// as expected by layers.Embedding.
func classIndices(labels *Node) *Node {
	return InsertAxes(ArgMax(labels, -1, dtypes.Int32), -1)
}

// GeneratorGraph builds the generator: it maps noise, shaped [batchSize, latentDim], and one-hot labels,
// shaped [batchSize, numClasses], to images shaped [batchSize, imageSize, imageSize, 1] with values in [-1, 1].
//
// The noise is multiplied by a learned embedding of the class before going through the dense layers.
func GeneratorGraph(ctx *context.Context, noise, labels *Node) *Node {
	ctx = ctx.In(GeneratorScope)
	dtype := noise.DType()
	batchSize := noise.Shape().Dimensions[0]
	latentDim := noise.Shape().Dimensions[noise.Rank()-1]
	imageSize := context.GetParamOr(ctx, ParamImageSize, 128)
	numClasses := context.GetParamOr(ctx, ParamNumClasses, len(DefaultClasses))
	alpha := context.GetParamOr(ctx, ParamLeakyReluAlpha, 0.2)
	momentum := context.GetParamOr(ctx, ParamBatchNormMomentum, 0.8)
	hiddenDims := context.GetParamOr(ctx, ParamGenHiddenDims, []int{256, 512, 1024})

	labelEmbedding := layers.Embedding(ctx.In("label_embedding"), classIndices(labels), dtype, numClasses, latentDim)
	x := Mul(noise, labelEmbedding)
	for ii, dim := range hiddenDims {
		layerCtx := ctx.In(fmt.Sprintf("hidden_%d", ii))
		x = layers.Dense(layerCtx, x, true, dim)
		x = activations.LeakyReluWith(x, alpha)
		x = batchnorm.New(layerCtx, x, -1).Momentum(momentum).Done()
	}
	x = layers.Dense(ctx.In("output"), x, true, imageSize*imageSize)
	x = Tanh(x)
	return Reshape(x, batchSize, imageSize, imageSize, 1)
}

// DiscriminatorGraph builds the discriminator: it maps images, shaped [batchSize, imageSize, imageSize, 1], and
// one-hot labels, shaped [batchSize, numClasses], to the logits of the image being real, shaped [batchSize, 1].
//
// The probability of an image being real is Sigmoid(logits).
func DiscriminatorGraph(ctx *context.Context, images, labels *Node) *Node {
	ctx = ctx.In(DiscriminatorScope)
	dtype := images.DType()
	batchSize := images.Shape().Dimensions[0]
	numClasses := context.GetParamOr(ctx, ParamNumClasses, len(DefaultClasses))
	alpha := context.GetParamOr(ctx, ParamLeakyReluAlpha, 0.2)
	dropoutRate := context.GetParamOr(ctx, ParamDiscDropout, 0.4)
	hiddenDims := context.GetParamOr(ctx, ParamDiscHiddenDims, []int{512, 512, 512})

	flat := Reshape(images, batchSize, images.Shape().Size()/batchSize)
	featuresDim := flat.Shape().Dimensions[1]
	labelEmbedding := layers.Embedding(ctx.In("label_embedding"), classIndices(labels), dtype, numClasses, featuresDim)
	x := Mul(flat, labelEmbedding)
	for ii, dim := range hiddenDims {
		layerCtx := ctx.In(fmt.Sprintf("hidden_%d", ii))
		x = layers.Dense(layerCtx, x, true, dim)
		x = activations.LeakyReluWith(x, alpha)
		if ii > 0 && dropoutRate > 0 {
			x = layers.DropoutStatic(layerCtx, x, dropoutRate)
		}
	}
	return layers.Dense(ctx.In("output"), x, true, 1)
}

// ParamCount returns the total number of scalar values of the variables under the current scope of ctx.
func ParamCount(ctx *context.Context) int {
	var total int
	for v := range ctx.IterVariablesInScope() {
		total += v.Shape().Size()
	}
	return total
}
