package analytics

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
)

// Priority levels for reaching out to a customer.
const (
	PriorityCritical = "critical"
	PriorityMedium   = "medium"

	criticalProbability = 0.7
	commitmentFactor    = 0.90
	loyaltyFactor       = 0.85
)

// Baseline holds the portfolio figures a single customer is compared against.
type Baseline struct {
	CriticalThreshold float64 `json:"critical_threshold"`
	TenureMedian      float64 `json:"tenure_median"`
	HighValueCLV      float64 `json:"high_value_clv"`
}

// DefaultBaseline is used when no portfolio is loaded.
var DefaultBaseline = Baseline{
	CriticalThreshold: FallbackCriticalThreshold,
	TenureMedian:      FallbackTenureMedian,
	HighValueCLV:      FallbackHighValueCLV,
}

// ComputeBaseline derives the comparison figures from a portfolio.
func ComputeBaseline(customers []dataset.Customer) Baseline {
	if len(customers) == 0 {
		return DefaultBaseline
	}
	b := DefaultBaseline
	b.CriticalThreshold, _ = CriticalThreshold(customers)
	if median, err := stats.Median(tenures(customers)); err == nil {
		b.TenureMedian = median
	}
	meanCharge, errCharge := stats.Mean(charges(customers, nil))
	meanTenure, errTenure := stats.Mean(tenures(customers))
	if errCharge == nil && errTenure == nil {
		b.HighValueCLV = meanCharge * meanTenure
	}
	return b
}

// Factor is the weight of one driver of a customer's risk.
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Offer is a priced retention offer.
type Offer struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Discount float64 `json:"discount"`
}

// Insight is the explanation and action plan for one scored customer.
type Insight struct {
	Segment     string   `json:"segment"`
	Factors     []Factor `json:"factors"`
	CLV         float64  `json:"clv"`
	FutureValue float64  `json:"future_value"`
	HighValue   bool     `json:"high_value"`
	Offers      []Offer  `json:"offers"`
	Priority    string   `json:"priority"`
	Outreach    string   `json:"outreach,omitempty"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// CustomerInsight explains a scored customer against a baseline. The outreach
// draft is only written for customers labelled as churning.
func CustomerInsight(c dataset.Customer, probability float64, churn bool, b Baseline) Insight {
	in := Insight{
		Segment:     SegmentStandard,
		CLV:         c.MonthlyCharges * c.Tenure,
		FutureValue: c.MonthlyCharges * 12,
		Priority:    PriorityMedium,
	}

	if c.MonthlyCharges >= b.CriticalThreshold {
		if c.Tenure < b.TenureMedian {
			in.Segment = SegmentRiskyNew
		} else {
			in.Segment = SegmentVIP
		}
	}

	in.Factors = []Factor{
		{Name: "contract", Weight: pick(c.Contract == "Month-to-month", 0.45, 0.05)},
		{Name: "charge", Weight: pick(c.MonthlyCharges > b.CriticalThreshold, 0.35, 0.15)},
		{Name: "payment", Weight: pick(c.PaymentMethod == "Electronic check", 0.20, 0.05)},
	}

	in.HighValue = in.CLV > b.HighValueCLV

	loyalty := round2(c.MonthlyCharges * loyaltyFactor)
	in.Offers = []Offer{
		{Name: "12-month commitment discount", Price: round2(c.MonthlyCharges * commitmentFactor), Discount: 10},
		{Name: "VIP loyalty package", Price: loyalty, Discount: 15},
	}

	if probability > criticalProbability {
		in.Priority = PriorityCritical
	}

	if churn {
		in.Outreach = fmt.Sprintf(`Dear customer,

Thank you for your %s months with us.

If you renew with a one-year commitment:
- your monthly charge drops from $%.2f to $%.2f
- we add a free Tech Support package

Reply to this email to accept the offer.`, dataset.FormatFloat(c.Tenure), c.MonthlyCharges, loyalty)
	}
	return in
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}
