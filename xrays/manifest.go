// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xrays loads a labeled chest X-ray dataset described by a CSV manifest.
//
// The manifest has one row per image, with (at least) the columns "File Name" (path to the image,
// relative to the manifest directory if not absolute) and "Finding Labels" (the diagnostic label).
// Images are converted to single channel, resized to a square and normalized to zero mean, and
// labels are one-hot encoded.
package xrays

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

const (
	// ColumnFileName is the manifest column with the image file path.
	ColumnFileName = "File Name"

	// ColumnLabels is the manifest column with the class label of the image.
	ColumnLabels = "Finding Labels"
)

// Entry is one row of the manifest.
type Entry struct {
	// Path to the image file, already resolved against the manifest directory.
	Path string

	// Label is the text label of the image, e.g. "Effusion".
	Label string
}

// LoadManifest reads the manifest CSV file in path.
// Relative image paths are resolved against the directory of the manifest.
func LoadManifest(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest %q", path)
	}
	defer func() { _ = f.Close() }()
	entries, err := ReadManifest(f, filepath.Dir(path))
	if err != nil {
		return nil, errors.WithMessagef(err, "manifest %q", path)
	}
	return entries, nil
}

// ReadManifest parses a manifest CSV from r. Relative image paths are joined to baseDir.
func ReadManifest(r io.Reader, baseDir string) ([]Entry, error) {
	df, err := readManifestFrame(r)
	if err != nil {
		return nil, err
	}
	return entriesFromFrame(df, baseDir)
}

func readManifestFrame(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.WithTypes(map[string]series.Type{
			ColumnFileName: series.String,
			ColumnLabels:   series.String,
		}))
	if df.Err != nil {
		return df, errors.Wrap(df.Err, "parsing manifest CSV")
	}
	var hasFile, hasLabels bool
	for _, name := range df.Names() {
		switch name {
		case ColumnFileName:
			hasFile = true
		case ColumnLabels:
			hasLabels = true
		}
	}
	if !hasFile || !hasLabels {
		return df, errors.Errorf("manifest requires columns %q and %q, got %q",
			ColumnFileName, ColumnLabels, df.Names())
	}
	return df, nil
}

func entriesFromFrame(df dataframe.DataFrame, baseDir string) ([]Entry, error) {
	files := df.Col(ColumnFileName).Records()
	labels := df.Col(ColumnLabels).Records()
	entries := make([]Entry, 0, len(files))
	for row, file := range files {
		file = strings.TrimSpace(file)
		label := strings.TrimSpace(labels[row])
		if file == "" || file == "NaN" {
			return nil, errors.Errorf("manifest row %d has an empty %q", row+1, ColumnFileName)
		}
		if label == "" || label == "NaN" {
			return nil, errors.Errorf("manifest row %d (%q) has an empty %q", row+1, file, ColumnLabels)
		}
		if !filepath.IsAbs(file) && baseDir != "" {
			file = filepath.Join(baseDir, file)
		}
		entries = append(entries, Entry{Path: file, Label: label})
	}
	return entries, nil
}

// FilterClasses returns only the entries whose label is one of classes.
// If classes is empty, entries is returned unchanged.
func FilterClasses(entries []Entry, classes []string) ([]Entry, error) {
	if len(classes) == 0 || len(entries) == 0 {
		return entries, nil
	}
	paths := make([]string, len(entries))
	labels := make([]string, len(entries))
	for ii, e := range entries {
		paths[ii], labels[ii] = e.Path, e.Label
	}
	df := dataframe.New(
		series.New(paths, series.String, ColumnFileName),
		series.New(labels, series.String, ColumnLabels))
	df = df.Filter(dataframe.F{
		Colname:    ColumnLabels,
		Comparator: series.In,
		Comparando: classes,
	})
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "filtering manifest for classes %q", classes)
	}
	if df.Nrow() == 0 {
		return nil, nil
	}
	filtered, err := entriesFromFrame(df, "")
	if err != nil {
		return nil, errors.WithMessagef(err, "filtering manifest for classes %q", classes)
	}
	return filtered, nil
}
