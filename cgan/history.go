// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cgan

import (
	"os"

	mg "github.com/erkkah/margaid"
	"github.com/pkg/errors"
)

// PlotHistory plots the discriminator loss, generator loss and discriminator accuracy over the epochs
// and saves it as an SVG file in path.
func PlotHistory(history []Metrics, path string) error {
	if len(history) == 0 {
		return errors.New("no training history to plot")
	}
	dLoss := mg.NewSeries(mg.Titled("D loss"))
	gLoss := mg.NewSeries(mg.Titled("G loss"))
	dAccuracy := mg.NewSeries(mg.Titled("D accuracy"))
	allPoints := mg.NewSeries()
	for _, m := range history {
		epoch := float64(m.Epoch)
		for _, point := range []struct {
			series *mg.Series
			value  float64
		}{{dLoss, m.DLoss}, {gLoss, m.GLoss}, {dAccuracy, m.DAccuracy}} {
			v := mg.MakeValue(epoch, point.value)
			point.series.Add(v)
			allPoints.Add(v)
		}
	}

	allSeries := []*mg.Series{dLoss, gLoss, dAccuracy}
	diagram := mg.New(800, 400,
		mg.WithAutorange(mg.XAxis, allSeries...),
		mg.WithAutorange(mg.YAxis, allSeries...),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
		mg.WithBackgroundColor("#f8f8f8"),
	)
	for _, s := range allSeries {
		diagram.Line(s, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	}
	diagram.Axis(allPoints, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, "Epochs")
	diagram.Axis(allPoints, mg.YAxis, diagram.ValueTicker('f', 3, 10), true, "Loss / Accuracy")
	diagram.Frame()
	diagram.Title("CGAN training")
	diagram.Legend(mg.BottomLeft)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating history plot %q", path)
	}
	if err = diagram.Render(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "rendering history plot to %q", path)
	}
	return errors.Wrapf(f.Close(), "closing %q", path)
}
