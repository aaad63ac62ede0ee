package dataset

import "strconv"

// Customer is the typed view of a record used by the analytics layer.
// Unparseable numbers are left at zero. Empty or NaN tenure and charge cells set
// the matching Missing flag so aggregates can skip them.
type Customer struct {
	ID              string            `json:"customer_id"`
	Tenure          float64           `json:"tenure"`
	MonthlyCharges  float64           `json:"monthly_charges"`
	TotalCharges    float64           `json:"total_charges"`
	Contract        string            `json:"contract"`
	InternetService string            `json:"internet_service"`
	TechSupport     string            `json:"tech_support"`
	PaymentMethod   string            `json:"payment_method"`
	Churned         bool              `json:"churned"`
	Services        map[string]string `json:"services,omitempty"`
	TenureMissing   bool              `json:"tenure_missing,omitempty"`
	ChargeMissing   bool              `json:"charge_missing,omitempty"`
}

// CustomerFromRecord builds the typed view of a record.
func CustomerFromRecord(r Record) Customer {
	c := Customer{
		ID:              r.String(ColCustomerID),
		Contract:        r.String(ColContract),
		InternetService: r.String(ColInternetService),
		TechSupport:     r.String(ColTechSupport),
		PaymentMethod:   r.String(ColPaymentMethod),
		Churned:         r.String(ColChurn) == "Yes",
		Services:        make(map[string]string),
	}
	var ok bool
	var err error
	c.Tenure, ok, err = r.Float(ColTenure)
	c.TenureMissing = !ok || err != nil
	c.MonthlyCharges, ok, err = r.Float(ColMonthlyCharges)
	c.ChargeMissing = !ok || err != nil
	c.TotalCharges, _, _ = r.Float(ColTotalCharges)

	for _, col := range ServiceColumns {
		if v, ok := r.Value(col); ok {
			c.Services[col] = v
		}
	}
	return c
}

// Customers builds the typed view of every row in a table.
func Customers(t *Table) []Customer {
	out := make([]Customer, t.Len())
	for i := 0; i < t.Len(); i++ {
		out[i] = CustomerFromRecord(t.Record(i))
	}
	return out
}

// Record converts the customer back into a raw record, as used for manual entry.
func (c Customer) Record() Record {
	values := map[string]string{
		ColContract:        c.Contract,
		ColInternetService: c.InternetService,
		ColTechSupport:     c.TechSupport,
		ColPaymentMethod:   c.PaymentMethod,
	}
	if !c.TenureMissing {
		values[ColTenure] = strconv.FormatFloat(c.Tenure, 'f', -1, 64)
	}
	if !c.ChargeMissing {
		values[ColMonthlyCharges] = strconv.FormatFloat(c.MonthlyCharges, 'f', -1, 64)
	}
	if c.ID != "" {
		values[ColCustomerID] = c.ID
	}
	if c.TotalCharges != 0 {
		values[ColTotalCharges] = strconv.FormatFloat(c.TotalCharges, 'f', -1, 64)
	}
	for k, v := range c.Services {
		if _, set := values[k]; !set {
			values[k] = v
		}
	}
	return NewRecord(values)
}

// ActiveServices counts add-on services with value "Yes".
func (c Customer) ActiveServices() int {
	n := 0
	for _, col := range ServiceColumns {
		v := c.Services[col]
		if col == ColTechSupport && v == "" {
			v = c.TechSupport
		}
		if v == "Yes" {
			n++
		}
	}
	return n
}
