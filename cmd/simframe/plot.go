package main

import "github.com/guptarohit/asciigraph"

func plotGraph(data []float64, caption string) string {
	return asciigraph.Plot(data,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}
