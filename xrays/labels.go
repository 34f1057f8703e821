// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xrays

import (
	"slices"

	"github.com/pkg/errors"
)

// LabelEncoder maps text labels to class indices and one-hot vectors.
//
// Classes are the sorted unique labels it was fitted with.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder creates a LabelEncoder fitted to the given labels.
func NewLabelEncoder(labels []string) (*LabelEncoder, error) {
	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	if len(classes) == 0 {
		return nil, errors.New("cannot create a label encoder without any labels")
	}
	enc := &LabelEncoder{classes: classes, index: make(map[string]int, len(classes))}
	for ii, c := range classes {
		enc.index[c] = ii
	}
	return enc, nil
}

// Classes returns the sorted class names. Don't modify it.
func (enc *LabelEncoder) Classes() []string { return enc.classes }

// NumClasses returns the number of classes.
func (enc *LabelEncoder) NumClasses() int { return len(enc.classes) }

// Index returns the class index of label.
func (enc *LabelEncoder) Index(label string) (int, error) {
	idx, found := enc.index[label]
	if !found {
		return 0, errors.Errorf("unknown label %q, known classes are %q", label, enc.classes)
	}
	return idx, nil
}

// Encode returns the one-hot encoding of label.
func (enc *LabelEncoder) Encode(label string) ([]float32, error) {
	idx, err := enc.Index(label)
	if err != nil {
		return nil, err
	}
	oneHot := make([]float32, len(enc.classes))
	oneHot[idx] = 1
	return oneHot, nil
}

// EncodeAll returns the flat one-hot encoding of all labels, shaped [len(labels), NumClasses()].
func (enc *LabelEncoder) EncodeAll(labels []string) ([]float32, error) {
	numClasses := len(enc.classes)
	flat := make([]float32, len(labels)*numClasses)
	for row, label := range labels {
		idx, err := enc.Index(label)
		if err != nil {
			return nil, errors.WithMessagef(err, "label #%d", row)
		}
		flat[row*numClasses+idx] = 1
	}
	return flat, nil
}
