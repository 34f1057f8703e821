// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xrays

import (
	"context"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/pbnjay/memory"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config for loading the dataset.
type Config struct {
	// ImageSize is the height and width images are resized to.
	ImageSize int

	// Classes, if not empty, filters the manifest to only these labels.
	Classes []string

	// Parallelism is the maximum number of images loaded concurrently. If <= 0, runtime.NumCPU() is used.
	Parallelism int

	// MaxMemoryFraction is the fraction of the total system memory the loaded images may use.
	// If <= 0 the memory check is skipped.
	MaxMemoryFraction float64
}

// DefaultConfig returns the configuration used to train the X-ray CGAN.
func DefaultConfig() Config {
	return Config{
		ImageSize:         128,
		MaxMemoryFraction: 0.5,
	}
}

// Dataset holds all images and one-hot labels in memory.
type Dataset struct {
	Entries   []Entry
	Encoder   *LabelEncoder
	ImageSize int

	// Images shaped [numExamples, ImageSize, ImageSize, 1], and Labels shaped [numExamples, numClasses].
	Images, Labels *tensors.Tensor

	backend backends.Backend
}

// New loads the dataset described by the manifest in manifestPath.
func New(backend backends.Backend, manifestPath string, cfg Config) (*Dataset, error) {
	entries, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return FromEntries(backend, entries, cfg)
}

// FromEntries loads the images and labels of the given manifest entries.
func FromEntries(backend backends.Backend, entries []Entry, cfg Config) (*Dataset, error) {
	numRows := len(entries)
	entries, err := FilterClasses(entries, cfg.Classes)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.Errorf("no images left in the dataset after filtering %d rows for classes %q",
			numRows, cfg.Classes)
	}
	if len(entries) < numRows {
		klog.V(1).Infof("Kept %s of %s manifest rows with classes %q",
			humanize.Comma(int64(len(entries))), humanize.Comma(int64(numRows)), cfg.Classes)
	}

	labels := make([]string, len(entries))
	for ii, e := range entries {
		labels[ii] = e.Label
	}
	enc, err := NewLabelEncoder(labels)
	if err != nil {
		return nil, err
	}
	if cfg.MaxMemoryFraction > 0 {
		if err := CheckMemory(len(entries), cfg.ImageSize, cfg.MaxMemoryFraction); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	flatImages, err := LoadImages(context.Background(), entries, cfg.ImageSize, cfg.Parallelism)
	if err != nil {
		return nil, err
	}
	flatLabels, err := enc.EncodeAll(labels)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Loaded %s images of %dx%d in %s",
		humanize.Comma(int64(len(entries))), cfg.ImageSize, cfg.ImageSize, time.Since(start))

	return &Dataset{
		Entries:   entries,
		Encoder:   enc,
		ImageSize: cfg.ImageSize,
		Images:    tensors.FromFlatDataAndDimensions(flatImages, len(entries), cfg.ImageSize, cfg.ImageSize, 1),
		Labels:    tensors.FromFlatDataAndDimensions(flatLabels, len(entries), enc.NumClasses()),
		backend:   backend,
	}, nil
}

// NumExamples in the dataset.
func (ds *Dataset) NumExamples() int { return len(ds.Entries) }

// Sampler returns an infinite dataset that yields batches of batchSize examples, sampled randomly with replacement.
// Each Yield returns inputs = [images] and labels = [one-hot labels].
//
// If rng is nil, one seeded with the current time is used.
func (ds *Dataset) Sampler(batchSize int, rng *rand.Rand) (*datasets.InMemoryDataset, error) {
	mds, err := datasets.InMemoryFromData(ds.backend, "xrays", []any{ds.Images}, []any{ds.Labels})
	if err != nil {
		return nil, errors.WithMessage(err, "creating in-memory X-ray dataset")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	mds.RandomWithReplacement().Infinite(true).BatchSize(batchSize, true).WithRand(rng)
	return mds, nil
}

// imageCopies is the number of copies of the images held at the same time while loading:
// the flat slice of pixels and the tensor built from it.
const imageCopies = 2

// ImagesMemory returns the peak memory, in bytes, used to load numImages images of size x size pixels.
func ImagesMemory(numImages, size int) uint64 {
	return imageCopies * uint64(numImages) * uint64(dtypes.Float32.SizeForDimensions(size, size))
}

// CheckMemory returns an error if loading numImages images of size x size float32 pixels (see ImagesMemory)
// would use more than maxFraction of the total system memory.
func CheckMemory(numImages, size int, maxFraction float64) error {
	needed := ImagesMemory(numImages, size)
	total := memory.TotalMemory()
	if total == 0 {
		klog.Warningf("Unable to query total system memory, skipping memory check for %s of images",
			humanize.Bytes(needed))
		return nil
	}
	if float64(needed) > maxFraction*float64(total) {
		return errors.Errorf("dataset of %s images of %dx%d requires %s, more than %.0f%% of the system memory (%s)",
			humanize.Comma(int64(numImages)), size, size, humanize.Bytes(needed), 100*maxFraction, humanize.Bytes(total))
	}
	klog.V(1).Infof("Dataset requires %s of %s system memory", humanize.Bytes(needed), humanize.Bytes(total))
	return nil
}
