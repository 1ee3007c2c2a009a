// Package viz renders composite runs in the terminal.
//
//   - [PlotData]: asciigraph plot of predicted data, whole or one series per
//     pairing block
//   - [Sparkline]: one-line summary of a vector
//   - [MetricTable], [Status]: lipgloss-styled report pieces
//
// Styling degrades to plain text when the output is not a terminal.
package viz
