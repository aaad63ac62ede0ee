// Package analytics computes the portfolio-level churn aggregates shown on the
// dashboard. Every function is a pure read over a slice of customers.
package analytics

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
)

// Values used when a dataset has no churned customers to learn from.
const (
	FallbackCriticalThreshold = 79.65
	FallbackChurnRate         = 26.5
	FallbackTenureMedian      = 29
	FallbackHighValueCLV      = 1500
	FallbackRiskiestContract  = "Month-to-month"
)

// FallbackContractChurn are contract churn rates (percent) used with the
// fallback overview.
var FallbackContractChurn = []Rate{
	{Label: "Month-to-month", Percent: 42.7},
	{Label: "One year", Percent: 11.2},
	{Label: "Two year", Percent: 2.8},
}

// Rate is a churn percentage for one group.
type Rate struct {
	Label   string  `json:"label"`
	Percent float64 `json:"percent"`
	Total   int     `json:"total"`
	Churned int     `json:"churned"`
}

// Overview is the headline summary of a portfolio.
type Overview struct {
	TotalCustomers    int     `json:"total_customers"`
	ChurnedCustomers  int     `json:"churned_customers"`
	ChurnRate         float64 `json:"churn_rate"`
	CriticalThreshold float64 `json:"critical_threshold"`
	ContractChurn     []Rate  `json:"contract_churn"`
	RiskiestContract  string  `json:"riskiest_contract"`
	Fallback          bool    `json:"fallback"`
}

// RiskiestRate returns the highest contract churn rate.
func (o Overview) RiskiestRate() float64 {
	best := 0.0
	for _, r := range o.ContractChurn {
		if r.Percent > best {
			best = r.Percent
		}
	}
	return best
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// charges collects the monthly charges of customers accepted by keep. Missing
// charges are left out rather than counted as zero.
func charges(customers []dataset.Customer, keep func(dataset.Customer) bool) stats.Float64Data {
	out := make(stats.Float64Data, 0, len(customers))
	for _, c := range customers {
		if c.ChargeMissing {
			continue
		}
		if keep == nil || keep(c) {
			out = append(out, c.MonthlyCharges)
		}
	}
	return out
}

func tenures(customers []dataset.Customer) stats.Float64Data {
	out := make(stats.Float64Data, 0, len(customers))
	for _, c := range customers {
		if !c.TenureMissing {
			out = append(out, c.Tenure)
		}
	}
	return out
}

func churned(c dataset.Customer) bool { return c.Churned }

// groupRates returns churn rates per key, ordered by label.
func groupRates(customers []dataset.Customer, key func(dataset.Customer) string) []Rate {
	idx := make(map[string]*Rate)
	for _, c := range customers {
		k := key(c)
		r, ok := idx[k]
		if !ok {
			r = &Rate{Label: k}
			idx[k] = r
		}
		r.Total++
		if c.Churned {
			r.Churned++
		}
	}

	out := make([]Rate, 0, len(idx))
	for _, r := range idx {
		r.Percent = percent(r.Churned, r.Total)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// CriticalThreshold is the median monthly charge of churned customers.
func CriticalThreshold(customers []dataset.Customer) (float64, bool) {
	median, err := stats.Median(charges(customers, churned))
	if err != nil {
		return FallbackCriticalThreshold, false
	}
	return median, true
}

// ComputeOverview summarises a portfolio. Portfolios without churned customers
// get the fallback figures.
func ComputeOverview(customers []dataset.Customer) Overview {
	o := Overview{TotalCustomers: len(customers)}
	for _, c := range customers {
		if c.Churned {
			o.ChurnedCustomers++
		}
	}

	threshold, ok := CriticalThreshold(customers)
	if !ok {
		o.Fallback = true
		o.ChurnRate = FallbackChurnRate
		o.CriticalThreshold = threshold
		o.ContractChurn = append([]Rate(nil), FallbackContractChurn...)
		o.RiskiestContract = FallbackRiskiestContract
		return o
	}

	o.ChurnRate = percent(o.ChurnedCustomers, o.TotalCustomers)
	o.CriticalThreshold = threshold
	o.ContractChurn = groupRates(customers, func(c dataset.Customer) string { return c.Contract })

	best := -1.0
	for _, r := range o.ContractChurn {
		if r.Percent > best {
			best = r.Percent
			o.RiskiestContract = r.Label
		}
	}
	return o
}

// Summary bundles every portfolio aggregate served to the dashboard.
type Summary struct {
	Overview      Overview           `json:"overview"`
	Medians       Medians            `json:"medians"`
	Segments      []SegmentCount     `json:"segments"`
	Stickiness    []Rate             `json:"stickiness"`
	PaymentLosses []PaymentLoss      `json:"payment_losses"`
	Charges       ChargeDistribution `json:"charges"`
}

// ChargeBins is the histogram resolution used by Summarize.
const ChargeBins = 20

// Summarize computes every aggregate of a portfolio.
func Summarize(customers []dataset.Customer) Summary {
	return Summary{
		Overview:      ComputeOverview(customers),
		Medians:       ComputeMedians(customers),
		Segments:      Segments(customers),
		Stickiness:    Stickiness(customers),
		PaymentLosses: PaymentLosses(customers),
		Charges:       Charges(customers, ChargeBins),
	}
}
