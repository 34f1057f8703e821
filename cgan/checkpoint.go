// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RunsFileName is the file, in the checkpoint directory, that lists the runs that trained the model.
const RunsFileName = "runs.txt"

// AttachCheckpoint creates a checkpoint handler for the directory checkpointPath (relative to baseDir, if not absolute).
// If a checkpoint exists there, its variables and hyperparameters are loaded into ctx, except the
// hyperparameters listed in paramsSet (usually the ones set in the command line), which take precedence.
//
// It returns nil if checkpointPath is empty.
func AttachCheckpoint(ctx *context.Context, checkpointPath, baseDir string, paramsSet []string) (*checkpoints.Handler, error) {
	if checkpointPath == "" {
		return nil, nil
	}
	numCheckpoints := context.GetParamOr(ctx, ParamNumCheckpoints, 3)
	handler, err := checkpoints.Build(ctx).
		DirFromBase(checkpointPath, baseDir).
		Keep(numCheckpoints).
		ExcludeParams(paramsSet...).
		Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "attaching checkpoint %q", checkpointPath)
	}
	return handler, nil
}

// RecordRun creates a new run id and appends it, along with the time, to the runs file in dir.
func RecordRun(dir string) (runID string, err error) {
	runID = uuid.NewString()
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating directory %q", dir)
	}
	path := filepath.Join(dir, RunsFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errors.Wrapf(err, "opening %q", path)
	}
	if _, err = fmt.Fprintf(f, "%s\t%s\n", runID, time.Now().Format(time.RFC3339)); err != nil {
		_ = f.Close()
		return "", errors.Wrapf(err, "writing to %q", path)
	}
	return runID, errors.Wrapf(f.Close(), "closing %q", path)
}
