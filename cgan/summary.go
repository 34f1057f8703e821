// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
)

func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
}

// BuildModels builds and runs once both networks in inference mode, so their variables are created
// (or loaded from the checkpoint) without training them.
func (t *Trainer) BuildModels() error {
	exec, err := context.NewExec(t.backend, t.ctx.Checked(false), func(ctx *context.Context, labels *Node) *Node {
		ctx.SetTraining(labels.Graph(), false)
		generated := GeneratorGraph(ctx, t.sampleNoise(ctx, labels.Graph(), labels.Shape().Dimensions[0]), labels)
		return DiscriminatorGraph(ctx, generated, labels)
	})
	if err != nil {
		return errors.WithMessage(err, "creating models exec")
	}
	labels, err := oneHotLabels([]int{0}, t.numClasses)
	if err != nil {
		return err
	}
	logits, err := exec.Exec1(labels)
	if err != nil {
		return errors.WithMessage(err, "building models")
	}
	return logits.FinalizeAll()
}

// Summary writes a table with the variables of the generator and discriminator (scope, name, shape,
// number of values and memory), followed by the totals of each network.
//
// Only variables already created are listed, see Trainer.BuildModels.
func Summary(ctx *context.Context, w io.Writer) error {
	table := newPlainTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Right).
		Headers("Scope", "Variable", "Shape", "Size", "Memory")
	totals := make(map[string]int)
	for _, scope := range []string{GeneratorScope, DiscriminatorScope} {
		networkCtx := ctx.InAbsPath(context.RootScope + scope)
		var rows [][]string
		for v := range networkCtx.IterVariablesInScope() {
			shape := v.Shape()
			rows = append(rows, []string{
				v.Scope(), v.Name(), shape.String(),
				humanize.Comma(int64(shape.Size())),
				humanize.Bytes(uint64(shape.Memory())),
			})
		}
		slices.SortFunc(rows, func(a, b []string) int {
			return strings.Compare(a[0]+"/"+a[1], b[0]+"/"+b[1])
		})
		for _, row := range rows {
			table.Row(row...)
		}
		totals[scope] = ParamCount(networkCtx)
	}
	if _, err := fmt.Fprintln(w, table.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Generator: %s parameters, discriminator: %s parameters\n",
		humanize.Comma(int64(totals[GeneratorScope])), humanize.Comma(int64(totals[DiscriminatorScope])))
	return err
}
