package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
)

var blockColors = []asciigraph.AnsiColor{
	asciigraph.Cyan,
	asciigraph.Yellow,
	asciigraph.Green,
	asciigraph.Magenta,
	asciigraph.Red,
	asciigraph.Blue,
}

type PlotOptions struct {
	Height int
	Width  int
	// Overlay draws each pairing block as its own series starting at x=0.
	Overlay bool
}

// PlotData plots predicted data. offsets delimit the pairing blocks as in a
// concatenating composite; pass nil for summed data.
func PlotData(dpred []float64, offsets []int, opts PlotOptions) (string, error) {
	if len(dpred) == 0 {
		return "", fmt.Errorf("viz: no data to plot")
	}
	if opts.Height <= 0 {
		opts.Height = 10
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}

	common := []asciigraph.Option{
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Precision(3),
	}

	blocks := splitBlocks(dpred, offsets)
	if !opts.Overlay || len(blocks) < 2 {
		caption := fmt.Sprintf("dpred (%d data)", len(dpred))
		if len(blocks) > 1 {
			caption = fmt.Sprintf("dpred (%d data, %d blocks)", len(dpred), len(blocks))
		}
		return asciigraph.Plot(dpred, append(common, asciigraph.Caption(caption))...), nil
	}

	colors := make([]asciigraph.AnsiColor, len(blocks))
	legends := make([]string, len(blocks))
	for i := range blocks {
		colors[i] = blockColors[i%len(blockColors)]
		legends[i] = fmt.Sprintf("block %d", i)
	}
	opt := append(common,
		asciigraph.Caption("dpred by pairing"),
		asciigraph.SeriesColors(colors...),
		asciigraph.SeriesLegends(legends...),
	)
	return asciigraph.PlotMany(blocks, opt...), nil
}

// splitBlocks cuts v at offsets, skipping empty blocks. Without usable
// offsets the whole vector is one block.
func splitBlocks(v []float64, offsets []int) [][]float64 {
	if len(offsets) < 2 || offsets[len(offsets)-1] != len(v) {
		return [][]float64{v}
	}
	blocks := make([][]float64, 0, len(offsets)-1)
	for i := 0; i+1 < len(offsets); i++ {
		if offsets[i+1] > offsets[i] {
			blocks = append(blocks, v[offsets[i]:offsets[i+1]])
		}
	}
	return blocks
}
