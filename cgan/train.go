// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

const (
	// AdamDiscriminatorScope and AdamGeneratorScope hold the optimizer states (moments and step counters)
	// of each network, so they are updated independently.
	AdamDiscriminatorScope = "adam_discriminator"
	AdamGeneratorScope     = "adam_generator"

	// StateScope holds the training loop state, saved along with the checkpoints.
	StateScope = "/cgan"

	// EpochVarName is the name of the variable, in StateScope, with the number of epochs trained so far.
	EpochVarName = "epoch"
)

// Metrics of one adversarial training epoch.
type Metrics struct {
	Epoch int

	// DLossReal and DLossFake are the discriminator losses on the real and generated batches, and
	// DLoss is their mean.
	DLossReal, DLossFake, DLoss float64

	// DAccuracy is the mean discriminator accuracy on the real and generated batches, in [0, 1].
	DAccuracy float64

	// GLoss is the loss of the combined model (generator followed by the frozen discriminator).
	GLoss float64
}

// String formats the metrics as a one-line training log.
func (m Metrics) String() string {
	return fmt.Sprintf("%d [D loss: %f, acc.: %.2f%%] [G loss: %f]", m.Epoch, m.DLoss, 100*m.DAccuracy, m.GLoss)
}

// Trainer runs the adversarial training of the generator and discriminator.
//
// It holds 3 computation graphs sharing the variables of the context:
//
//   - predict: generates images for the given labels, with the generator in inference mode.
//   - discriminator step: one Adam update of the discriminator on a batch of images with the given targets.
//   - generator step: one Adam update of the generator through the combined model, with the
//     discriminator frozen.
type Trainer struct {
	backend    backends.Backend
	ctx        *context.Context
	checkpoint *checkpoints.Handler

	imageSize, numClasses, latentDim, batchSize int
	dtype                                       dtypes.DType

	discOptimizer, genOptimizer           optimizers.Interface
	predictExec, discStepExec, genStepExec *context.Exec
	renderExec                            *Exec

	// valid and fake targets for batches of batchSize.
	valid, fake *tensors.Tensor

	rng     *rand.Rand
	history []Metrics

	// out receives the training log lines and the progress bar.
	out io.Writer
}

// NewTrainer creates the networks and optimizers configured by the hyperparameters in ctx.
//
// If checkpoint is not nil, variables and hyperparameters are loaded from it (if a checkpoint
// exists), and training continues from the last saved epoch.
func NewTrainer(backend backends.Backend, ctx *context.Context, checkpoint *checkpoints.Handler) (*Trainer, error) {
	t := &Trainer{
		backend:    backend,
		ctx:        ctx,
		checkpoint: checkpoint,
		imageSize:  context.GetParamOr(ctx, ParamImageSize, 128),
		numClasses: context.GetParamOr(ctx, ParamNumClasses, len(DefaultClasses)),
		latentDim:  context.GetParamOr(ctx, ParamLatentDim, 10_000),
		batchSize:  context.GetParamOr(ctx, ParamBatchSize, 128),
		dtype:      dtypes.Float32,
		out:        os.Stdout,
	}
	switch {
	case t.imageSize <= 0:
		return nil, errors.Errorf("invalid %s=%d", ParamImageSize, t.imageSize)
	case t.numClasses <= 0:
		return nil, errors.Errorf("invalid %s=%d", ParamNumClasses, t.numClasses)
	case t.latentDim <= 0:
		return nil, errors.Errorf("invalid %s=%d", ParamLatentDim, t.latentDim)
	case t.batchSize <= 0:
		return nil, errors.Errorf("invalid %s=%d", ParamBatchSize, t.batchSize)
	}

	seed := int64(context.GetParamOr(ctx, ParamSeed, 0))
	fixedSeed := seed != 0
	if !fixedSeed {
		seed = time.Now().UnixNano()
	}
	t.rng = rand.New(rand.NewSource(seed))

	learningRate := context.GetParamOr(ctx, ParamLearningRate, 0.0002)
	beta1 := context.GetParamOr(ctx, ParamAdamBeta1, 0.5)
	beta2 := context.GetParamOr(ctx, ParamAdamBeta2, 0.999)
	t.discOptimizer = optimizers.Adam().Scope(AdamDiscriminatorScope).
		LearningRate(learningRate).Betas(beta1, beta2).Done()
	t.genOptimizer = optimizers.Adam().Scope(AdamGeneratorScope).
		LearningRate(learningRate).Betas(beta1, beta2).Done()

	// All graphs share the same variables, so the context can't be checked for variable reuse.
	execCtx := ctx.Checked(false)
	var err error
	if t.predictExec, err = context.NewExec(backend, execCtx, t.predictGraph); err != nil {
		return nil, errors.WithMessage(err, "creating generator predict exec")
	}
	if t.discStepExec, err = context.NewExec(backend, execCtx, t.discriminatorStepGraph); err != nil {
		return nil, errors.WithMessage(err, "creating discriminator train step exec")
	}
	if t.genStepExec, err = context.NewExec(backend, execCtx, t.generatorStepGraph); err != nil {
		return nil, errors.WithMessage(err, "creating generator train step exec")
	}
	if t.renderExec, err = NewExec(backend, renderGraph); err != nil {
		return nil, errors.WithMessage(err, "creating render exec")
	}
	t.valid = constantTargets(t.batchSize, 1)
	t.fake = constantTargets(t.batchSize, 0)

	// Creates the epoch counter, or loads it from the checkpoint.
	_ = epochVariable(ctx)
	if fixedSeed && t.Epoch() == 0 {
		if err := ctx.SetRNGStateFromSeed(seed); err != nil {
			return nil, errors.WithMessage(err, "setting RNG state from seed")
		}
	}
	return t, nil
}

// Context used by the trainer.
func (t *Trainer) Context() *context.Context { return t.ctx }

// History returns the metrics of each epoch trained by this Trainer.
func (t *Trainer) History() []Metrics { return t.history }

// Epoch returns the number of epochs trained so far, including the ones restored from a checkpoint.
func (t *Trainer) Epoch() int {
	return int(epochVariable(t.ctx).MustValue().Value().(int64))
}

func epochVariable(ctx *context.Context) *context.Variable {
	return ctx.InAbsPath(StateScope).Checked(false).
		VariableWithValue(EpochVarName, int64(0)).SetTrainable(false)
}

func constantTargets(batchSize int, value float32) *tensors.Tensor {
	flat := make([]float32, batchSize)
	for ii := range flat {
		flat[ii] = value
	}
	return tensors.FromFlatDataAndDimensions(flat, batchSize, 1)
}

// oneHotLabels converts class indices to a one-hot tensor shaped [len(classes), numClasses].
func oneHotLabels(classes []int, numClasses int) (*tensors.Tensor, error) {
	flat := make([]float32, len(classes)*numClasses)
	for ii, c := range classes {
		if c < 0 || c >= numClasses {
			return nil, errors.Errorf("class %d out of range [0, %d)", c, numClasses)
		}
		flat[ii*numClasses+c] = 1
	}
	return tensors.FromFlatDataAndDimensions(flat, len(classes), numClasses), nil
}

// sampleNoise returns standard normal noise shaped [batchSize, latentDim].
func (t *Trainer) sampleNoise(ctx *context.Context, g *Graph, batchSize int) *Node {
	return ctx.RandomNormal(g, shapes.Make(t.dtype, batchSize, t.latentDim))
}

func (t *Trainer) predictGraph(ctx *context.Context, labels *Node) *Node {
	g := labels.Graph()
	ctx.SetTraining(g, false)
	noise := t.sampleNoise(ctx, g, labels.Shape().Dimensions[0])
	return GeneratorGraph(ctx, noise, labels)
}

// binaryLossAndAccuracy returns the mean binary cross-entropy of the logits and the fraction of logits
// that classify the targets correctly.
func binaryLossAndAccuracy(logits, targets *Node) (loss, accuracy *Node) {
	targets = ConvertDType(targets, logits.DType())
	loss = ReduceAllMean(losses.BinaryCrossentropyLogits([]*Node{targets}, []*Node{logits}))
	predictions := ConvertDType(GreaterThan(logits, ZerosLike(logits)), logits.DType())
	accuracy = ReduceAllMean(ConvertDType(Equal(predictions, targets), logits.DType()))
	return
}

func (t *Trainer) discriminatorStepGraph(ctx *context.Context, images, labels, targets *Node) []*Node {
	g := images.Graph()
	ctx.SetTraining(g, true)
	logits := DiscriminatorGraph(ctx, images, labels)
	loss, accuracy := binaryLossAndAccuracy(logits, targets)
	t.discOptimizer.UpdateGraph(ctx, g, loss)
	return []*Node{loss, accuracy}
}

// freezeScope marks the trainable variables under the scope of ctx as non-trainable.
// It returns a function that restores them.
func freezeScope(ctx *context.Context) (restore func()) {
	var frozen []*context.Variable
	for v := range ctx.IterVariablesInScope() {
		if v.Trainable {
			v.SetTrainable(false)
			frozen = append(frozen, v)
		}
	}
	return func() {
		for _, v := range frozen {
			v.SetTrainable(true)
		}
	}
}

func (t *Trainer) generatorStepGraph(ctx *context.Context, labels *Node) *Node {
	g := labels.Graph()
	ctx.SetTraining(g, true)
	noise := t.sampleNoise(ctx, g, labels.Shape().Dimensions[0])
	generated := GeneratorGraph(ctx, noise, labels)
	logits := DiscriminatorGraph(ctx, generated, labels)
	loss, _ := binaryLossAndAccuracy(logits, OnesLike(logits))

	// The optimizer only sees trainable variables: the discriminator is frozen while building the update.
	restore := freezeScope(ctx.In(DiscriminatorScope))
	t.genOptimizer.UpdateGraph(ctx, g, loss)
	restore()

	epochVar := epochVariable(ctx)
	epochVar.SetValueGraph(AddScalar(epochVar.ValueGraph(g), 1))
	return loss
}

// renderGraph converts generated images in [-1, 1] with 1 channel to 3 channels images in [0, 1].
func renderGraph(images *Node) *Node {
	images = ClipScalar(AddScalar(MulScalar(images, 0.5), 0.5), 0, 1)
	dims := slices.Clone(images.Shape().Dimensions)
	dims[len(dims)-1] = 3
	return BroadcastToDims(images, dims...)
}

func scalarValue(t *tensors.Tensor) float64 {
	return float64(t.Value().(float32))
}

// RandomLabels returns batchSize one-hot labels of classes sampled uniformly.
func (t *Trainer) RandomLabels(batchSize int) *tensors.Tensor {
	classes := make([]int, batchSize)
	for ii := range classes {
		classes[ii] = t.rng.Intn(t.numClasses)
	}
	return must.M1(oneHotLabels(classes, t.numClasses))
}

func (t *Trainer) targets(batchSize int) (valid, fake *tensors.Tensor) {
	if batchSize == t.batchSize {
		return t.valid, t.fake
	}
	return constantTargets(batchSize, 1), constantTargets(batchSize, 0)
}

// TrainStep trains one epoch on the batch of real images, shaped [batchSize, imageSize, imageSize, 1],
// and their one-hot labels, shaped [batchSize, numClasses]:
//
//  1. Generate a batch of fake images for the same labels.
//  2. Train the discriminator on the real images (target 1) and on the fake images (target 0).
//  3. Train the generator, through the combined model, to have random labeled fakes classified as real.
func (t *Trainer) TrainStep(realImages, realLabels *tensors.Tensor) (m Metrics, err error) {
	m.Epoch = t.Epoch()
	batchSize := realImages.Shape().Dimensions[0]
	valid, fake := t.targets(batchSize)

	fakeImages, err := t.predictExec.Exec1(realLabels)
	if err != nil {
		return m, errors.WithMessage(err, "generating fake images")
	}
	defer func() { _ = fakeImages.FinalizeAll() }()

	lossReal, accReal, err := t.discStepExec.Exec2(realImages, realLabels, valid)
	if err != nil {
		return m, errors.WithMessage(err, "training discriminator on real images")
	}
	lossFake, accFake, err := t.discStepExec.Exec2(fakeImages, realLabels, fake)
	if err != nil {
		return m, errors.WithMessage(err, "training discriminator on fake images")
	}
	m.DLossReal, m.DLossFake = scalarValue(lossReal), scalarValue(lossFake)
	m.DLoss = 0.5 * (m.DLossReal + m.DLossFake)
	m.DAccuracy = 0.5 * (scalarValue(accReal) + scalarValue(accFake))

	genLoss, err := t.genStepExec.Exec1(t.RandomLabels(batchSize))
	if err != nil {
		return m, errors.WithMessage(err, "training generator")
	}
	m.GLoss = scalarValue(genLoss)
	t.history = append(t.history, m)
	return m, nil
}

// shouldSaveSamples returns whether samples are saved after the given (0-based) epoch.
// Samples are saved on epochs 1, 1+interval, 1+2*interval, ...; with interval 1 on every epoch.
func shouldSaveSamples(epoch, interval int) bool {
	return interval > 0 && (epoch-1)%interval == 0
}

// Train runs the adversarial training until ParamTrainEpochs epochs are trained, sampling batches from ds.
// Each Yield of ds must return inputs=[images] and labels=[one-hot labels].
//
// If samplesDir is not empty, a grid of generated samples is saved there every ParamSaveInterval epochs,
// and the loss history is plotted there at the end.
//
// With verbosity >= 1 a line with the metrics is printed for each epoch, and with verbosity 1 it is
// followed by a progress bar.
func (t *Trainer) Train(ds train.Dataset, samplesDir string, verbosity int) error {
	numEpochs := context.GetParamOr(t.ctx, ParamTrainEpochs, 10)
	saveInterval := context.GetParamOr(t.ctx, ParamSaveInterval, 1)
	startEpoch := t.Epoch()
	if startEpoch >= numEpochs {
		klog.Infof("Model already trained for %d epochs (%s=%d), nothing to do", startEpoch, ParamTrainEpochs, numEpochs)
		return nil
	}
	if startEpoch > 0 {
		klog.Infof("Continuing training from epoch %d", startEpoch)
	}

	var bar *progressbar.ProgressBar
	if verbosity == 1 {
		bar = progressbar.NewOptions(numEpochs-startEpoch,
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("epochs"),
			progressbar.OptionSetWriter(t.out),
			progressbar.OptionSetTheme(progressbar.ThemeASCII))
	}

	for epoch := startEpoch; epoch < numEpochs; epoch++ {
		_, inputs, labels, err := ds.Yield()
		if err != nil {
			return errors.WithMessagef(err, "reading batch for epoch %d", epoch)
		}
		if len(inputs) != 1 || len(labels) != 1 {
			return errors.Errorf("dataset %q yielded %d inputs and %d labels, expected one of each",
				ds.Name(), len(inputs), len(labels))
		}
		m, err := t.TrainStep(inputs[0], labels[0])
		finalizeAll(inputs, labels)
		if err != nil {
			return errors.WithMessagef(err, "epoch %d", epoch)
		}
		if verbosity < 1 {
			klog.V(1).Info(m)
		} else {
			if bar != nil {
				_ = bar.Clear()
			}
			_, _ = fmt.Fprintln(t.out, m)
		}
		if bar != nil {
			bar.Describe(fmt.Sprintf("D loss: %.4f, acc.: %.1f%%, G loss: %.4f", m.DLoss, 100*m.DAccuracy, m.GLoss))
			_ = bar.Add(1)
		}

		if samplesDir != "" && shouldSaveSamples(m.Epoch, saveInterval) {
			if err := t.SaveSamples(samplesDir, m.Epoch); err != nil {
				return err
			}
			if err := t.SaveCheckpoint(); err != nil {
				return err
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
		_, _ = fmt.Fprintln(t.out)
	}

	if err := t.SaveCheckpoint(); err != nil {
		return err
	}
	if samplesDir != "" && len(t.history) > 0 {
		if err := PlotHistory(t.history, filepath.Join(samplesDir, "loss_history.svg")); err != nil {
			return err
		}
	}
	return nil
}

func finalizeAll(tensorLists ...[]*tensors.Tensor) {
	for _, list := range tensorLists {
		for _, t := range list {
			_ = t.FinalizeAll()
		}
	}
}

// SaveCheckpoint saves the variables and hyperparameters, if a checkpoint handler was given.
func (t *Trainer) SaveCheckpoint() error {
	if t.checkpoint == nil {
		return nil
	}
	if err := t.checkpoint.Save(); err != nil {
		return errors.WithMessagef(err, "saving checkpoint to %q", t.checkpoint.Dir())
	}
	return nil
}
