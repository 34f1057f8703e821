// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cgan implements a conditional GAN (generative adversarial network) that synthesizes
// grayscale chest X-rays conditioned on a diagnostic class.
//
// Both networks are stacks of fully-connected layers. The class label modulates the input of each
// network through an embedding that is multiplied elementwise with the noise (generator) or with the
// flattened image (discriminator).
//
// Hyperparameters are stored in the context, see CreateDefaultContext.
package cgan

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
)

const (
	// ParamImageSize is the height and width of the images.
	ParamImageSize = "image_size"

	// ParamNumClasses is the number of class labels the networks are conditioned on.
	ParamNumClasses = "num_classes"

	// ParamLatentDim is the size of the noise vector fed to the generator.
	ParamLatentDim = "latent_dim"

	// ParamGenHiddenDims lists the sizes of the generator hidden dense layers.
	ParamGenHiddenDims = "gen_hidden_dims"

	// ParamDiscHiddenDims lists the sizes of the discriminator hidden dense layers.
	ParamDiscHiddenDims = "disc_hidden_dims"

	// ParamLeakyReluAlpha is the negative slope of the leaky relu activations.
	ParamLeakyReluAlpha = "leaky_relu_alpha"

	// ParamBatchNormMomentum is the momentum of the generator batch normalization moving averages.
	ParamBatchNormMomentum = "batchnorm_momentum"

	// ParamDiscDropout is the dropout rate applied after the discriminator hidden layers, except the first.
	ParamDiscDropout = "disc_dropout"

	// ParamLearningRate is the Adam learning rate used for both networks.
	ParamLearningRate = "learning_rate"

	// ParamAdamBeta1 and ParamAdamBeta2 are the Adam moment decay rates used for both networks.
	ParamAdamBeta1 = "adam_beta1"
	ParamAdamBeta2 = "adam_beta2"

	// ParamBatchSize is the number of real (and fake) images used in each training epoch.
	ParamBatchSize = "batch_size"

	// ParamTrainEpochs is the total number of adversarial training iterations.
	// Each "epoch" trains on one sampled batch.
	ParamTrainEpochs = "train_epochs"

	// ParamSaveInterval is the period, in epochs, to save a grid of samples.
	ParamSaveInterval = "save_interval"

	// ParamSampleRows and ParamSampleCols define the grid of samples saved during training.
	ParamSampleRows = "sample_rows"
	ParamSampleCols = "sample_cols"

	// ParamNumCheckpoints is the number of checkpoints to keep.
	ParamNumCheckpoints = "num_checkpoints"

	// ParamGeneratePerClass is the number of images generated for each class after training.
	ParamGeneratePerClass = "generate_per_class"

	// ParamClasses are the labels to keep from the dataset manifest. Empty keeps all.
	ParamClasses = "classes"

	// ParamSeed seeds the sampling of the dataset and of the generator labels. If 0 a time based seed is used.
	ParamSeed = "seed"
)

// DefaultClasses are the X-ray findings the model is trained on.
var DefaultClasses = []string{"Atelectasis", "No Finding", "Cardiomegaly", "Effusion", "Pneumothorax"}

// CreateDefaultContext sets the context with default hyperparameters to use with NewTrainer.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.ResetRNGState()
	ctx.SetParams(map[string]any{
		// Data and model shapes.
		ParamImageSize:  128,
		ParamNumClasses: len(DefaultClasses),
		ParamLatentDim:  10_000,
		ParamClasses:    DefaultClasses,

		// Generator: dense -> leaky relu -> batch norm, for each hidden dim.
		ParamGenHiddenDims:     []int{256, 512, 1024},
		ParamBatchNormMomentum: 0.8,

		// Discriminator: dense -> leaky relu (-> dropout, except on the first layer).
		ParamDiscHiddenDims: []int{512, 512, 512},
		ParamDiscDropout:    0.4,

		ParamLeakyReluAlpha: 0.2,

		// Optimizer, shared settings for both networks.
		ParamLearningRate: 0.0002,
		ParamAdamBeta1:    0.5,
		ParamAdamBeta2:    0.999,

		// Training loop.
		ParamBatchSize:      128,
		ParamTrainEpochs:    10,
		ParamSaveInterval:   1,
		ParamSampleRows:     5,
		ParamSampleCols:     5,
		ParamNumCheckpoints: 3,
		ParamSeed:           0,

		// Dataset generation after training.
		ParamGeneratePerClass: 1000,
	})
	return ctx
}
