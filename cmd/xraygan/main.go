// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// xraygan trains a conditional GAN on a dataset of chest X-rays, and optionally generates a synthetic
// dataset with a fixed number of images per class.
//
// Example:
//
//	go run ./cmd/xraygan -data=~/work/xrays/Data_Entry.csv -checkpoint=base -set="train_epochs=5000;batch_size=64" \
//		-generate=~/work/xrays/synthetic
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/xraygan/cgan"
	"github.com/gomlx/xraygan/xrays"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

// DefaultBaseDir holds the checkpoints given with relative paths.
const DefaultBaseDir = "~/work/xraygan"

var (
	flagData       = flag.String("data", "", "Path to the CSV manifest with the image file names and finding labels. Required.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory to save and load checkpoints from. If relative, it is under "+DefaultBaseDir+". If left empty, no checkpoints are created.")
	flagSamples    = flag.String("samples", "images", "Directory where grids of generated samples and the loss history are saved. If empty, no samples are saved.")
	flagGenerate   = flag.String("generate", "", "Directory where to generate a synthetic dataset after training, one subdirectory per class. If empty, no dataset is generated.")
	flagSummary    = flag.Bool("summary", false, "Print a summary of the model variables before training.")
	flagVerbosity  = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

func main() {
	ctx := cgan.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	if *flagData == "" {
		klog.Exitf("Please set the manifest of the dataset with -data")
	}
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	err := exceptions.TryCatch[error](func() {
		must.M(run(ctx, paramsSet))
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

func run(ctx *context.Context, paramsSet []string) error {
	backend := backends.MustNew()
	if *flagVerbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}

	// Loads hyperparameters (but the ones set in the command line) from the checkpoint, if there is one.
	checkpoint, err := cgan.AttachCheckpoint(ctx, *flagCheckpoint, DefaultBaseDir, paramsSet)
	if err != nil {
		return err
	}
	if checkpoint != nil {
		runID, err := cgan.RecordRun(checkpoint.Dir())
		if err != nil {
			return err
		}
		klog.Infof("Run %s, checkpoint: %q", runID, checkpoint.Dir())
	}

	cfg := xrays.DefaultConfig()
	cfg.ImageSize = context.GetParamOr(ctx, cgan.ParamImageSize, cfg.ImageSize)
	cfg.Classes = context.GetParamOr(ctx, cgan.ParamClasses, cgan.DefaultClasses)
	ds, err := xrays.New(backend, fsutil.MustReplaceTildeInDir(*flagData), cfg)
	if err != nil {
		return err
	}
	classNames := ds.Encoder.Classes()
	fmt.Printf("Dataset: %d images, classes %q\n", ds.NumExamples(), classNames)
	ctx.SetParam(cgan.ParamNumClasses, len(classNames))
	if *flagVerbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	seed := int64(context.GetParamOr(ctx, cgan.ParamSeed, 0))
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sampler, err := ds.Sampler(context.GetParamOr(ctx, cgan.ParamBatchSize, 128), rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}

	trainer, err := cgan.NewTrainer(backend, ctx, checkpoint)
	if err != nil {
		return err
	}
	if *flagSummary {
		if err := trainer.BuildModels(); err != nil {
			return err
		}
		if err := cgan.Summary(ctx, os.Stdout); err != nil {
			return err
		}
	}

	samplesDir := *flagSamples
	if samplesDir != "" {
		samplesDir = fsutil.MustReplaceTildeInDir(samplesDir)
	}
	if err := trainer.Train(sampler, samplesDir, *flagVerbosity); err != nil {
		return err
	}

	if *flagGenerate != "" {
		perClass := context.GetParamOr(ctx, cgan.ParamGeneratePerClass, 1000)
		outputDir := fsutil.MustReplaceTildeInDir(*flagGenerate)
		if err := trainer.GenerateDataset(outputDir, perClass, classNames); err != nil {
			return err
		}
		fmt.Printf("Generated %d images per class in %q\n", perClass, outputDir)
	}
	return nil
}
