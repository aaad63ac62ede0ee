package analytics

import (
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
)

// Value segments, split on the portfolio medians of charge and tenure.
const (
	SegmentVIP            = "VIP"
	SegmentRiskyNew       = "Risky New"
	SegmentLoyalEconomy   = "Loyal Economy"
	SegmentChurnCandidate = "Churn Candidate"
	SegmentOther          = "Other"
	SegmentStandard       = "Standard"
)

// SegmentOrder is the display order of the value segments.
var SegmentOrder = []string{SegmentVIP, SegmentRiskyNew, SegmentLoyalEconomy, SegmentChurnCandidate}

// Medians are the split points for segmentation.
type Medians struct {
	Charge float64 `json:"charge"`
	Tenure float64 `json:"tenure"`
}

// ComputeMedians returns the median charge and tenure of a portfolio.
func ComputeMedians(customers []dataset.Customer) Medians {
	var m Medians
	m.Charge, _ = stats.Median(charges(customers, nil))
	m.Tenure, _ = stats.Median(tenures(customers))
	return m
}

// Segment places one customer in the value matrix. A missing number never
// compares as high.
func (m Medians) Segment(c dataset.Customer) string {
	highCharge := !c.ChargeMissing && c.MonthlyCharges >= m.Charge
	loyal := !c.TenureMissing && c.Tenure >= m.Tenure
	switch {
	case highCharge && loyal:
		return SegmentVIP
	case highCharge:
		return SegmentRiskyNew
	case loyal:
		return SegmentLoyalEconomy
	default:
		return SegmentChurnCandidate
	}
}

// quickSegment collapses the two low-charge segments into Other.
func (m Medians) quickSegment(c dataset.Customer) string {
	s := m.Segment(c)
	if s == SegmentVIP || s == SegmentRiskyNew {
		return s
	}
	return SegmentOther
}

// SegmentCount is the size of one value segment.
type SegmentCount struct {
	Segment string `json:"segment"`
	Count   int    `json:"count"`
}

// Segments counts customers per value segment, largest first.
func Segments(customers []dataset.Customer) []SegmentCount {
	m := ComputeMedians(customers)
	counts := make(map[string]int, len(SegmentOrder))
	for _, c := range customers {
		counts[m.Segment(c)]++
	}

	out := make([]SegmentCount, 0, len(SegmentOrder))
	for _, s := range SegmentOrder {
		if counts[s] > 0 {
			out = append(out, SegmentCount{Segment: s, Count: counts[s]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Stickiness returns the churn rate by number of active add-on services, in
// ascending service count.
func Stickiness(customers []dataset.Customer) []Rate {
	rates := groupRates(customers, func(c dataset.Customer) string {
		return strconv.Itoa(c.ActiveServices())
	})
	sort.Slice(rates, func(i, j int) bool {
		a, _ := strconv.Atoi(rates[i].Label)
		b, _ := strconv.Atoi(rates[j].Label)
		return a < b
	})
	return rates
}

// PaymentLoss is the number of churned customers using a payment method.
type PaymentLoss struct {
	Method  string `json:"method"`
	Churned int    `json:"churned"`
}

// PaymentLosses counts churned customers per payment method, largest first.
func PaymentLosses(customers []dataset.Customer) []PaymentLoss {
	counts := make(map[string]int)
	for _, c := range customers {
		if c.Churned {
			counts[c.PaymentMethod]++
		}
	}

	out := make([]PaymentLoss, 0, len(counts))
	for method, n := range counts {
		out = append(out, PaymentLoss{Method: method, Churned: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Churned != out[j].Churned {
			return out[i].Churned > out[j].Churned
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// ChargeDistribution is a histogram of monthly charges split by churn outcome.
type ChargeDistribution struct {
	Edges    []float64 `json:"edges"`
	Churned  []int     `json:"churned"`
	Retained []int     `json:"retained"`
}

// Charges buckets monthly charges into equal-width bins. Customers without a
// charge are not counted.
func Charges(customers []dataset.Customer, bins int) ChargeDistribution {
	all := charges(customers, nil)
	if bins <= 0 || len(all) == 0 {
		return ChargeDistribution{}
	}
	lo, _ := stats.Min(all)
	hi, _ := stats.Max(all)
	width := (hi - lo) / float64(bins)

	d := ChargeDistribution{
		Edges:    make([]float64, bins+1),
		Churned:  make([]int, bins),
		Retained: make([]int, bins),
	}
	for i := range d.Edges {
		d.Edges[i] = lo + float64(i)*width
	}
	for _, c := range customers {
		if c.ChargeMissing {
			continue
		}
		b := bins - 1
		if width > 0 {
			b = int((c.MonthlyCharges - lo) / width)
			if b >= bins {
				b = bins - 1
			}
		}
		if c.Churned {
			d.Churned[b]++
		} else {
			d.Retained[b]++
		}
	}
	return d
}
