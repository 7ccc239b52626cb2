package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/okian/sitstraight/internal/adapters/repository"
	"github.com/okian/sitstraight/internal/domain/posture"
)

const (
	defaultChartWindow = time.Hour
	chartPoints        = 5000
	// echarts renders "-" as a gap.
	chartGap = "-"
)

// ChartHandler renders recorded scores as an HTML line chart.
type ChartHandler struct {
	deps HistoryReader
	now  func() time.Time
}

// NewChartHandler creates a new chart handler.
func NewChartHandler(deps HistoryReader) *ChartHandler {
	return &ChartHandler{deps: deps, now: time.Now}
}

// HandleChart handles GET /chart?window=<duration>.
func (h *ChartHandler) HandleChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.chart"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	window, err := parseWindow(r, defaultChartWindow)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	samples, err := h.deps.History(r.Context(), repository.Query{Since: h.now().Add(-window), Limit: chartPoints})
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}

	var buf bytes.Buffer
	if err := scoreChart(samples, window).Render(&buf); err != nil {
		writeFailure(w, r, op, fmt.Errorf("render chart: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// scoreChart plots score and slouch over time. Frames with nobody in view are gaps.
func scoreChart(samples []repository.Sample, window time.Duration) *charts.Line {
	x := make([]string, 0, len(samples))
	scores := make([]opts.LineData, 0, len(samples))
	slouch := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, s.Time().Format("15:04:05"))
		if s.State == posture.StateUnknown {
			scores = append(scores, opts.LineData{Value: chartGap})
			slouch = append(slouch, opts.LineData{Value: chartGap})
			continue
		}
		scores = append(scores, opts.LineData{Value: s.Score})
		slouch = append(slouch, opts.LineData{Value: fmt.Sprintf("%.1f", s.SlouchRaw*100)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Posture", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Posture score", Subtitle: fmt.Sprintf("last %s, %d frames", window, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
	)
	line.SetXAxis(x).
		AddSeries("score", scores).
		AddSeries("slouch x100", slouch).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}
