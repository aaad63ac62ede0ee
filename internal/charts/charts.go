// Package charts renders portfolio aggregates as PNG images.
package charts

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	chart "github.com/wcharczuk/go-chart"

	"github.com/aysenursarun/ChurnGuard-AI/internal/analytics"
)

// Chart names accepted by Render.
const (
	Segments   = "segments"
	Contracts  = "contracts"
	Stickiness = "stickiness"
	Payments   = "payments"
	Charges    = "charges"
)

// Names lists every chart in dashboard order.
var Names = []string{Segments, Contracts, Stickiness, Payments, Charges}

var (
	// ErrUnknownChart is returned for a chart name not in Names.
	ErrUnknownChart = errors.New("unknown chart")
	// ErrNotEnoughData is returned when a chart has too few points to draw.
	ErrNotEnoughData = errors.New("not enough data to draw chart")
)

const (
	width  = 1024
	height = 400
)

// Render draws the named chart of s as a PNG.
func Render(w io.Writer, name string, s analytics.Summary) error {
	switch name {
	case Segments:
		bars := make([]chart.Value, len(s.Segments))
		for i, seg := range s.Segments {
			bars[i] = chart.Value{Label: seg.Segment, Value: float64(seg.Count)}
		}
		return renderBars(w, "Customer value matrix", bars)

	case Contracts:
		bars := make([]chart.Value, len(s.Overview.ContractChurn))
		for i, r := range s.Overview.ContractChurn {
			bars[i] = chart.Value{Label: r.Label, Value: r.Percent}
		}
		return renderBars(w, "Churn rate by contract (%)", bars)

	case Payments:
		bars := make([]chart.Value, len(s.PaymentLosses))
		for i, p := range s.PaymentLosses {
			bars[i] = chart.Value{Label: p.Method, Value: float64(p.Churned)}
		}
		return renderBars(w, "Churned customers by payment method", bars)

	case Stickiness:
		xs := make([]float64, 0, len(s.Stickiness))
		ys := make([]float64, 0, len(s.Stickiness))
		for _, r := range s.Stickiness {
			n, err := strconv.Atoi(r.Label)
			if err != nil {
				continue
			}
			xs = append(xs, float64(n))
			ys = append(ys, r.Percent)
		}
		return renderLines(w, "Churn rate by add-on services", "Active services", "Churn rate (%)",
			chart.ContinuousSeries{Name: "churn rate", XValues: xs, YValues: ys})

	case Charges:
		d := s.Charges
		if len(d.Edges) < 2 {
			return ErrNotEnoughData
		}
		mids := make([]float64, len(d.Edges)-1)
		churned := make([]float64, len(mids))
		retained := make([]float64, len(mids))
		for i := range mids {
			mids[i] = (d.Edges[i] + d.Edges[i+1]) / 2
			churned[i] = float64(d.Churned[i])
			retained[i] = float64(d.Retained[i])
		}
		return renderLines(w, "Monthly charge distribution", "Monthly charge ($)", "Customers",
			chart.ContinuousSeries{Name: "churned", XValues: mids, YValues: churned},
			chart.ContinuousSeries{Name: "retained", XValues: mids, YValues: retained},
		)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownChart, name)
	}
}

func maxOf(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	if m == 0 {
		return 1
	}
	return m * 1.1
}

func renderBars(w io.Writer, title string, bars []chart.Value) error {
	if len(bars) == 0 {
		return ErrNotEnoughData
	}
	values := make([]float64, len(bars))
	for i, b := range bars {
		values[i] = b.Value
	}

	graph := chart.BarChart{
		Title:      title,
		TitleStyle: chart.StyleShow(),
		Width:      width,
		Height:     height,
		BarWidth:   80,
		XAxis:      chart.StyleShow(),
		YAxis: chart.YAxis{
			Style: chart.StyleShow(),
			Range: &chart.ContinuousRange{Min: 0, Max: maxOf(values)},
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, w)
}

func renderLines(w io.Writer, title, xName, yName string, series ...chart.ContinuousSeries) error {
	var ys []float64
	out := make([]chart.Series, len(series))
	for i, s := range series {
		if len(s.XValues) < 2 {
			return ErrNotEnoughData
		}
		s.Style = chart.Style{
			Show:        true,
			StrokeColor: chart.GetAlternateColor(i),
		}
		ys = append(ys, s.YValues...)
		out[i] = s
	}

	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.StyleShow(),
		Width:      width,
		Height:     height,
		XAxis: chart.XAxis{
			Name:      xName,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      yName,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
			Range:     &chart.ContinuousRange{Min: 0, Max: maxOf(ys)},
		},
		Series: out,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}
	return graph.Render(chart.PNG, w)
}
