// Package report builds the downloadable list of customers at risk of churning.
package report

import (
	"io"

	"github.com/gocarina/gocsv"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
)

// RiskThreshold is the probability a customer must exceed to be listed.
const RiskThreshold = 0.5

// Row is one line of the risk report.
type Row struct {
	CustomerID      string  `csv:"customerID" json:"customer_id"`
	Tenure          string  `csv:"tenure" json:"tenure"`
	Contract        string  `csv:"Contract" json:"contract"`
	InternetService string  `csv:"InternetService" json:"internet_service"`
	TechSupport     string  `csv:"TechSupport" json:"tech_support"`
	PaymentMethod   string  `csv:"PaymentMethod" json:"payment_method"`
	MonthlyCharges  string  `csv:"MonthlyCharges" json:"monthly_charges"`
	RiskScore       float64 `csv:"RiskScore" json:"risk_score"`
}

// Build lists the scanned rows above RiskThreshold, riskiest first. Cell values
// are copied from the source table as written.
func Build(t *dataset.Table, scan scoring.Scan) []Row {
	risky := scan.AtRisk(RiskThreshold)
	rows := make([]Row, len(risky))
	for i, s := range risky {
		r := t.Record(s.Row)
		rows[i] = Row{
			CustomerID:      r.String(dataset.ColCustomerID),
			Tenure:          r.String(dataset.ColTenure),
			Contract:        r.String(dataset.ColContract),
			InternetService: r.String(dataset.ColInternetService),
			TechSupport:     r.String(dataset.ColTechSupport),
			PaymentMethod:   r.String(dataset.ColPaymentMethod),
			MonthlyCharges:  r.String(dataset.ColMonthlyCharges),
			RiskScore:       s.Probability,
		}
	}
	return rows
}

// Write renders rows as CSV with a header line.
func Write(w io.Writer, rows []Row) error {
	return gocsv.Marshal(&rows, w)
}
