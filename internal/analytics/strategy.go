package analytics

import (
	"fmt"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
)

// RecoveryRate is the share of at-risk revenue a retention campaign targets.
const RecoveryRate = 0.25

// RoadmapItem is one data-driven retention action.
type RoadmapItem struct {
	Title          string  `json:"title"`
	Metric         float64 `json:"metric"`
	Recommendation string  `json:"recommendation"`
}

// PriorityAction is one row of the action priority matrix.
type PriorityAction struct {
	Action   string `json:"action"`
	Impact   string `json:"impact"`
	Effort   string `json:"effort"`
	Priority int    `json:"priority"`
}

// PriorityMatrix ranks the standard retention actions.
var PriorityMatrix = []PriorityAction{
	{Action: "Commitment campaign", Impact: "High", Effort: "Easy", Priority: 5},
	{Action: "Tech support package", Impact: "Medium", Effort: "Hard", Priority: 3},
	{Action: "Loyalty discount", Impact: "High", Effort: "Very easy", Priority: 4},
	{Action: "VIP account manager", Impact: "Very high", Effort: "Hard", Priority: 4},
	{Action: "Auto-pay incentive", Impact: "Medium", Effort: "Easy", Priority: 4},
}

// Strategy is the financial retention plan for a portfolio.
type Strategy struct {
	RevenueAtRisk        float64            `json:"revenue_at_risk"`
	RecoveryRate         float64            `json:"recovery_rate"`
	MonthlyRecovery      float64            `json:"monthly_recovery"`
	AnnualRecovery       float64            `json:"annual_recovery"`
	RiskiestContract     string             `json:"riskiest_contract"`
	RiskiestContractRate float64            `json:"riskiest_contract_rate"`
	CriticalThreshold    float64            `json:"critical_threshold"`
	HighTicketChurnRate  float64            `json:"high_ticket_churn_rate"`
	SegmentLossShare     map[string]float64 `json:"segment_loss_share"`
	Roadmap              []RoadmapItem      `json:"roadmap"`
	PriorityMatrix       []PriorityAction   `json:"priority_matrix"`
}

// ComputeStrategy derives recovery targets and the roadmap from a portfolio.
func ComputeStrategy(customers []dataset.Customer) Strategy {
	o := ComputeOverview(customers)
	m := ComputeMedians(customers)

	s := Strategy{
		RecoveryRate:         RecoveryRate,
		RiskiestContract:     o.RiskiestContract,
		RiskiestContractRate: o.RiskiestRate(),
		CriticalThreshold:    o.CriticalThreshold,
		SegmentLossShare:     map[string]float64{SegmentVIP: 0, SegmentRiskyNew: 0, SegmentOther: 0},
		PriorityMatrix:       PriorityMatrix,
	}

	var high, highChurned, lost int
	for _, c := range customers {
		if !c.ChargeMissing && c.MonthlyCharges > o.CriticalThreshold {
			high++
			if c.Churned {
				highChurned++
			}
		}
		if c.Churned {
			lost++
			s.RevenueAtRisk += c.MonthlyCharges
			s.SegmentLossShare[m.quickSegment(c)]++
		}
	}
	for k, n := range s.SegmentLossShare {
		s.SegmentLossShare[k] = percent(int(n), lost)
	}

	s.MonthlyRecovery = s.RevenueAtRisk * RecoveryRate
	s.AnnualRecovery = s.MonthlyRecovery * 12
	s.HighTicketChurnRate = percent(highChurned, high)

	s.Roadmap = []RoadmapItem{
		{
			Title:          fmt.Sprintf("%s contract conversion", s.RiskiestContract),
			Metric:         s.RiskiestContractRate,
			Recommendation: fmt.Sprintf("Churn in this group is %.1f%%. Launch a 12-month commitment campaign.", s.RiskiestContractRate),
		},
		{
			Title:          fmt.Sprintf("Bill protection above $%.2f", s.CriticalThreshold),
			Metric:         s.HighTicketChurnRate,
			Recommendation: fmt.Sprintf("Churn above the threshold is %.1f%%. Introduce a loyalty discount.", s.HighTicketChurnRate),
		},
		{
			Title:          "Risky New customer programme",
			Metric:         s.SegmentLossShare[SegmentRiskyNew],
			Recommendation: fmt.Sprintf("%.1f%% of all losses come from this segment. Open a dedicated support line for the first 3 months.", s.SegmentLossShare[SegmentRiskyNew]),
		},
		{
			Title:          "VIP loss prevention",
			Metric:         s.SegmentLossShare[SegmentVIP],
			Recommendation: fmt.Sprintf("%.1f%% of losses are VIP customers. Assign a dedicated account manager.", s.SegmentLossShare[SegmentVIP]),
		},
	}
	return s
}
