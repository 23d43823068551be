// Package chart renders accuracy reports as PNG images for the analyze
// endpoint. Drawing is plain image/draw with a bitmap face so no font
// assets need to ship with the binary.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ryanp54/forecastcheck/internal/analysis"
)

const (
	chartWidth  = 800
	chartHeight = 400

	marginLeft   = 60
	marginRight  = 30
	marginTop    = 40
	marginBottom = 50
)

var (
	background = color.RGBA{255, 255, 255, 255}
	axisGray   = color.RGBA{120, 120, 120, 255}
	gridGray   = color.RGBA{225, 225, 225, 255}
	textBlack  = color.RGBA{40, 40, 40, 255}
	maeBlue    = color.RGBA{52, 101, 164, 255}
	biasOrange = color.RGBA{230, 140, 40, 255}
)

// RenderAccuracy draws temperature MAE and mean bias per lead day as a
// grouped bar chart. Returns the encoded PNG.
func RenderAccuracy(report *analysis.Report) ([]byte, error) {
	days := report.Days()
	if len(days) == 0 {
		return nil, errors.New("no scored lead days to chart")
	}

	img := image.NewRGBA(image.Rect(0, 0, chartWidth, chartHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	maxVal := 1.0
	for _, day := range days {
		if s := report.LeadDays[day][analysis.FieldTemperature]; s != nil {
			if s.MAE > maxVal {
				maxVal = s.MAE
			}
			if abs := absf(s.MeanBias); abs > maxVal {
				maxVal = abs
			}
		}
	}
	// Headroom so the tallest bar does not touch the title.
	maxVal *= 1.15

	plotW := chartWidth - marginLeft - marginRight
	plotH := chartHeight - marginTop - marginBottom
	baseY := marginTop + plotH

	drawGrid(img, maxVal, plotW, plotH)

	slot := plotW / len(days)
	barW := slot / 3
	for i, day := range days {
		s := report.LeadDays[day][analysis.FieldTemperature]
		if s == nil {
			continue
		}
		x := marginLeft + i*slot + slot/2

		maeH := int(float64(plotH) * s.MAE / maxVal)
		fillRect(img, x-barW, baseY-maeH, x, baseY, maeBlue)

		biasH := int(float64(plotH) * absf(s.MeanBias) / maxVal)
		fillRect(img, x, baseY-biasH, x+barW, baseY, biasOrange)

		drawText(img, fmt.Sprintf("day %d", day), x-barW, baseY+18, textBlack)
		drawText(img, fmt.Sprintf("n=%d", s.Samples), x-barW, baseY+32, axisGray)
	}

	// Axes drawn after bars so they stay crisp.
	fillRect(img, marginLeft-1, marginTop, marginLeft, baseY, axisGray)
	fillRect(img, marginLeft, baseY, chartWidth-marginRight, baseY+1, axisGray)

	drawText(img, "Temperature forecast accuracy by lead day (C)", marginLeft, 22, textBlack)
	drawLegend(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func drawGrid(img *image.RGBA, maxVal float64, plotW, plotH int) {
	baseY := marginTop + plotH
	for _, frac := range []float64{0.25, 0.5, 0.75, 1.0} {
		y := baseY - int(float64(plotH)*frac)
		fillRect(img, marginLeft, y, marginLeft+plotW, y+1, gridGray)
		drawText(img, fmt.Sprintf("%.1f", maxVal*frac), 12, y+4, axisGray)
	}
	drawText(img, "0", 12, baseY+4, axisGray)
}

func drawLegend(img *image.RGBA) {
	x := chartWidth - marginRight - 160
	fillRect(img, x, 12, x+12, 24, maeBlue)
	drawText(img, "MAE", x+18, 22, textBlack)
	fillRect(img, x+70, 12, x+82, 24, biasOrange)
	drawText(img, "|bias|", x+88, 22, textBlack)
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.Color) {
	draw.Draw(img, image.Rect(x0, y0, x1, y1), image.NewUniform(col), image.Point{}, draw.Src)
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
