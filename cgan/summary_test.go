// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	ctx := newTestContext()
	trainer := newTestTrainer(t, ctx)
	require.NoError(t, trainer.BuildModels())

	var buf bytes.Buffer
	require.NoError(t, Summary(ctx, &buf))
	summary := buf.String()
	t.Log(summary)
	assert.Contains(t, summary, "/generator/hidden_0")
	assert.Contains(t, summary, "/discriminator/label_embedding")
	assert.Contains(t, summary, "discriminator: 1,793 parameters")
	assert.NotContains(t, summary, AdamGeneratorScope)
	assert.Equal(t, 0, trainer.Epoch())
}
