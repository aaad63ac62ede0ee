package analytics

import (
	"strings"
	"testing"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portfolioCSV = `customerID,tenure,MonthlyCharges,Contract,InternetService,TechSupport,PaymentMethod,Churn,OnlineSecurity,OnlineBackup
c1,2,90,Month-to-month,Fiber optic,No,Electronic check,Yes,No,No
c2,5,70,Month-to-month,DSL,No,Electronic check,Yes,Yes,No
c3,40,100,One year,Fiber optic,Yes,Credit card (automatic),No,Yes,Yes
c4,60,20,Two year,No,No,Mailed check,No,No,No
c5,30,80,One year,DSL,No,Mailed check,Yes,No,Yes
c6,10,25,Month-to-month,DSL,No,Bank transfer (automatic),No,No,No
`

func portfolio(t *testing.T) []dataset.Customer {
	t.Helper()
	table, err := dataset.ReadCSV(strings.NewReader(portfolioCSV))
	require.NoError(t, err)
	return dataset.Customers(table)
}

func TestComputeOverview(t *testing.T) {
	o := ComputeOverview(portfolio(t))

	assert.False(t, o.Fallback)
	assert.Equal(t, 6, o.TotalCustomers)
	assert.Equal(t, 3, o.ChurnedCustomers)
	assert.InDelta(t, 50.0, o.ChurnRate, 1e-9)
	assert.Equal(t, 80.0, o.CriticalThreshold)
	assert.Equal(t, "Month-to-month", o.RiskiestContract)

	require.Len(t, o.ContractChurn, 3)
	assert.Equal(t, "Month-to-month", o.ContractChurn[0].Label)
	assert.InDelta(t, 200.0/3, o.ContractChurn[0].Percent, 1e-9)
	assert.Equal(t, "One year", o.ContractChurn[1].Label)
	assert.InDelta(t, 50.0, o.ContractChurn[1].Percent, 1e-9)
	assert.Zero(t, o.ContractChurn[2].Percent)
	assert.InDelta(t, 200.0/3, o.RiskiestRate(), 1e-9)
}

func TestComputeOverview_Fallback(t *testing.T) {
	tests := []struct {
		name      string
		customers []dataset.Customer
	}{
		{name: "empty", customers: nil},
		{name: "no churn", customers: []dataset.Customer{{Tenure: 3, MonthlyCharges: 20, Contract: "One year"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := ComputeOverview(tt.customers)
			assert.True(t, o.Fallback)
			assert.Equal(t, FallbackCriticalThreshold, o.CriticalThreshold)
			assert.Equal(t, FallbackChurnRate, o.ChurnRate)
			assert.Equal(t, FallbackContractChurn, o.ContractChurn)
			assert.Equal(t, FallbackRiskiestContract, o.RiskiestContract)
		})
	}
}

func TestSegments(t *testing.T) {
	customers := portfolio(t)

	m := ComputeMedians(customers)
	assert.Equal(t, Medians{Charge: 75, Tenure: 20}, m)

	assert.Equal(t, []SegmentCount{
		{Segment: SegmentVIP, Count: 2},
		{Segment: SegmentChurnCandidate, Count: 2},
		{Segment: SegmentRiskyNew, Count: 1},
		{Segment: SegmentLoyalEconomy, Count: 1},
	}, Segments(customers))
}

func TestStickiness(t *testing.T) {
	rates := Stickiness(portfolio(t))

	require.Len(t, rates, 3)
	assert.Equal(t, "0", rates[0].Label)
	assert.InDelta(t, 100.0/3, rates[0].Percent, 1e-9)
	assert.Equal(t, "1", rates[1].Label)
	assert.InDelta(t, 100.0, rates[1].Percent, 1e-9)
	assert.Equal(t, "3", rates[2].Label)
	assert.Zero(t, rates[2].Percent)
}

func TestPaymentLosses(t *testing.T) {
	assert.Equal(t, []PaymentLoss{
		{Method: "Electronic check", Churned: 2},
		{Method: "Mailed check", Churned: 1},
	}, PaymentLosses(portfolio(t)))
}

func TestCharges(t *testing.T) {
	d := Charges(portfolio(t), 4)

	require.Len(t, d.Edges, 5)
	assert.Equal(t, 20.0, d.Edges[0])
	assert.Equal(t, 100.0, d.Edges[4])
	assert.Equal(t, []int{0, 0, 1, 2}, d.Churned)
	assert.Equal(t, []int{2, 0, 0, 1}, d.Retained)

	assert.Empty(t, Charges(nil, 4).Edges)
}

func TestComputeStrategy(t *testing.T) {
	s := ComputeStrategy(portfolio(t))

	assert.Equal(t, 240.0, s.RevenueAtRisk)
	assert.Equal(t, 60.0, s.MonthlyRecovery)
	assert.Equal(t, 720.0, s.AnnualRecovery)
	assert.Equal(t, "Month-to-month", s.RiskiestContract)
	assert.InDelta(t, 50.0, s.HighTicketChurnRate, 1e-9)
	assert.InDelta(t, 100.0/3, s.SegmentLossShare[SegmentVIP], 1e-9)
	assert.InDelta(t, 100.0/3, s.SegmentLossShare[SegmentRiskyNew], 1e-9)
	assert.InDelta(t, 100.0/3, s.SegmentLossShare[SegmentOther], 1e-9)
	assert.Len(t, s.Roadmap, 4)
	assert.Equal(t, PriorityMatrix, s.PriorityMatrix)
}

func TestComputeBaseline(t *testing.T) {
	assert.Equal(t, DefaultBaseline, ComputeBaseline(nil))

	b := ComputeBaseline(portfolio(t))
	assert.Equal(t, 80.0, b.CriticalThreshold)
	assert.Equal(t, 20.0, b.TenureMedian)
	assert.InDelta(t, (385.0/6)*(147.0/6), b.HighValueCLV, 1e-9)
}

func TestAggregates_SkipMissingNumbers(t *testing.T) {
	table, err := dataset.ReadCSV(strings.NewReader(`customerID,tenure,MonthlyCharges,Contract,PaymentMethod,Churn
c1,2,90,Month-to-month,Electronic check,Yes
c2,5,,Month-to-month,Electronic check,Yes
c3,40,100,One year,Mailed check,Yes
c4,60,20,Two year,Mailed check,No
`))
	require.NoError(t, err)
	customers := dataset.Customers(table)

	o := ComputeOverview(customers)
	assert.Equal(t, 95.0, o.CriticalThreshold)
	assert.Equal(t, 4, o.TotalCustomers)

	assert.Equal(t, Medians{Charge: 90, Tenure: 22.5}, ComputeMedians(customers))
	assert.ElementsMatch(t, []SegmentCount{
		{Segment: SegmentRiskyNew, Count: 1},
		{Segment: SegmentChurnCandidate, Count: 1},
		{Segment: SegmentVIP, Count: 1},
		{Segment: SegmentLoyalEconomy, Count: 1},
	}, Segments(customers))

	d := Charges(customers, 2)
	assert.Equal(t, []int{0, 2}, d.Churned)
	assert.Equal(t, []int{1, 0}, d.Retained)

	s := ComputeStrategy(customers)
	assert.Equal(t, 190.0, s.RevenueAtRisk)
	assert.InDelta(t, 100.0, s.HighTicketChurnRate, 1e-9)

	b := ComputeBaseline(customers)
	assert.Equal(t, 95.0, b.CriticalThreshold)
	assert.InDelta(t, 70*26.75, b.HighValueCLV, 1e-9)
}

func TestComputeBaseline_NoNumbers(t *testing.T) {
	b := ComputeBaseline([]dataset.Customer{{TenureMissing: true, ChargeMissing: true, Churned: true}})
	assert.Equal(t, DefaultBaseline, b)
}

func TestCustomerInsight(t *testing.T) {
	tests := []struct {
		name        string
		customer    dataset.Customer
		probability float64
		churn       bool
		segment     string
		priority    string
		outreach    bool
	}{
		{
			name:        "standard churner",
			customer:    dataset.Customer{Tenure: 12, MonthlyCharges: 65, Contract: "Month-to-month", PaymentMethod: "Electronic check"},
			probability: 0.8,
			churn:       true,
			segment:     SegmentStandard,
			priority:    PriorityCritical,
			outreach:    true,
		},
		{
			name:        "risky new",
			customer:    dataset.Customer{Tenure: 5, MonthlyCharges: 100, Contract: "One year", PaymentMethod: "Mailed check"},
			probability: 0.55,
			churn:       true,
			segment:     SegmentRiskyNew,
			priority:    PriorityMedium,
			outreach:    true,
		},
		{
			name:        "vip",
			customer:    dataset.Customer{Tenure: 40, MonthlyCharges: 100, Contract: "Two year", PaymentMethod: "Mailed check"},
			probability: 0.1,
			churn:       false,
			segment:     SegmentVIP,
			priority:    PriorityMedium,
			outreach:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := CustomerInsight(tt.customer, tt.probability, tt.churn, DefaultBaseline)
			assert.Equal(t, tt.segment, in.Segment)
			assert.Equal(t, tt.priority, in.Priority)
			assert.Equal(t, tt.outreach, in.Outreach != "")
			assert.Equal(t, tt.customer.MonthlyCharges*tt.customer.Tenure, in.CLV)
			assert.Equal(t, tt.customer.MonthlyCharges*12, in.FutureValue)
		})
	}

	in := CustomerInsight(tests[0].customer, 0.8, true, DefaultBaseline)
	assert.Equal(t, []Factor{{"contract", 0.45}, {"charge", 0.15}, {"payment", 0.20}}, in.Factors)
	assert.False(t, in.HighValue)
	assert.Equal(t, 58.5, in.Offers[0].Price)
	assert.Equal(t, 55.25, in.Offers[1].Price)
	assert.Contains(t, in.Outreach, "12 months")
	assert.Contains(t, in.Outreach, "$55.25")

	vip := CustomerInsight(tests[2].customer, 0.1, false, DefaultBaseline)
	assert.True(t, vip.HighValue)
}
