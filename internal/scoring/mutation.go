package scoring

import (
	"fmt"
	"math"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/aysenursarun/ChurnGuard-AI/internal/features"
)

// Mutation describes a hypothetical change to a customer. Nil fields are left
// as they are.
type Mutation struct {
	Contract     *string  `json:"contract,omitempty"`
	TechSupport  *string  `json:"tech_support,omitempty"`
	ChargeFactor *float64 `json:"charge_factor,omitempty"`
}

// Apply returns a mutated copy of r. TotalCharges is not touched here; the
// encoder derives it from tenure and the new monthly charge.
func (m Mutation) Apply(r dataset.Record) (dataset.Record, error) {
	out := r
	if m.Contract != nil {
		out = out.With(dataset.ColContract, *m.Contract)
	}
	if m.TechSupport != nil {
		out = out.With(dataset.ColTechSupport, *m.TechSupport)
	}
	if m.ChargeFactor != nil {
		charge, ok, err := r.Float(dataset.ColMonthlyCharges)
		if !ok {
			return dataset.Record{}, &features.FieldError{Row: -1, Field: dataset.ColMonthlyCharges, Err: features.ErrMissingField}
		}
		if err != nil {
			return dataset.Record{}, &features.FieldError{Row: -1, Field: dataset.ColMonthlyCharges, Err: features.ErrInvalidValue}
		}
		if *m.ChargeFactor <= 0 {
			return dataset.Record{}, fmt.Errorf("charge factor must be positive, got %v", *m.ChargeFactor)
		}
		out = out.With(dataset.ColMonthlyCharges, dataset.FormatFloat(DiscountedCharge(charge, *m.ChargeFactor)))
	}
	return out, nil
}

// DiscountedCharge returns charge × factor rounded to cents.
func DiscountedCharge(charge, factor float64) float64 {
	return math.Round(charge*factor*100) / 100
}

// Preset is a named offer evaluated for every single-customer analysis.
type Preset struct {
	Name     string
	Mutation Mutation
}

const (
	// OneYearContract is the contract an offer moves a customer onto.
	OneYearContract = "One year"
	// SupportDiscount is the charge factor of the discount offer.
	SupportDiscount = 0.85
)

func ptr[T any](v T) *T { return &v }

var (
	// CommitmentOffer moves the customer to a one-year contract.
	CommitmentOffer = Preset{
		Name:     "commitment",
		Mutation: Mutation{Contract: ptr(OneYearContract)},
	}
	// DiscountSupportOffer cuts the monthly charge by 15% and adds tech support.
	DiscountSupportOffer = Preset{
		Name:     "discount_support",
		Mutation: Mutation{ChargeFactor: ptr(SupportDiscount), TechSupport: ptr("Yes")},
	}
	// CombinedOffer applies both offers.
	CombinedOffer = Preset{
		Name: "combined",
		Mutation: Mutation{
			Contract:     ptr(OneYearContract),
			ChargeFactor: ptr(SupportDiscount),
			TechSupport:  ptr("Yes"),
		},
	}

	// Presets are evaluated by Simulate in this order.
	Presets = []Preset{CommitmentOffer, DiscountSupportOffer, CombinedOffer}
)
