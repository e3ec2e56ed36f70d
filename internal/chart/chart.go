// Package chart renders HTML charts comparing sorting networks and the
// kernels generated from them.
package chart

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	sortnet "github.com/Akron/sortnet-go"
)

var title = cases.Title(language.Und)

func label(alg sortnet.Algorithm) string {
	return title.String(strings.ReplaceAll(alg.String(), "-", " "))
}

func newLine(name, yName string, sizes []int) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Sorting networks",
			Theme:     types.ThemeVintage,
		}),
		charts.WithTitleOpts(opts.Title{Title: name, Left: "center"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "N"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)
	line.SetXAxis(sizes)
	return line
}

// Networks writes a page with the depth and the comparator count of every
// algorithm over sizes. Sizes an algorithm has no network for are left
// empty.
func Networks(w io.Writer, algs []sortnet.Algorithm, sizes []int) error {
	depth := newLine("Network depth", "rounds", sizes)
	size := newLine("Comparators", "pairs", sizes)
	for _, alg := range algs {
		var depths, counts []opts.LineData
		for _, n := range sizes {
			nw, err := sortnet.NewNetwork(alg, n)
			if err != nil {
				depths = append(depths, opts.LineData{Value: "-"})
				counts = append(counts, opts.LineData{Value: "-"})
				continue
			}
			depths = append(depths, opts.LineData{Value: nw.Depth()})
			counts = append(counts, opts.LineData{Value: nw.Size()})
		}
		depth.AddSeries(label(alg), depths)
		size.AddSeries(label(alg), counts)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(depth, size)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("rendering network charts: %w", err)
	}
	return nil
}

// Kernels writes a stacked bar chart of instruction counts by kind, one
// bar per generated kernel. Failed rows are skipped.
func Kernels(w io.Writer, results []sortnet.MatrixResult) error {
	var names []string
	series := map[string][]opts.BarData{}
	kinds := []string{"permute", "min/max", "blend", "memory", "other"}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		t := r.Kernel.Target
		names = append(names, fmt.Sprintf("%s %s x%d %db", label(r.Request.Algorithm), t.Type, t.N, t.VectorBits))
		st := r.Kernel.Stats()
		for i, v := range []int{st.Permutes, st.MinMax, st.Blends, st.Loads + st.Stores, st.Logic + st.Consts} {
			series[kinds[i]] = append(series[kinds[i]], opts.BarData{Value: v})
		}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Sorting kernels",
			Width:     "180vh",
			Theme:     types.ThemeVintage,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Instructions per kernel", Left: "center"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 30}}),
	)
	bar.SetXAxis(names)
	for _, kind := range kinds {
		bar.AddSeries(kind, series[kind], charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
	}
	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("rendering kernel chart: %w", err)
	}
	return nil
}
