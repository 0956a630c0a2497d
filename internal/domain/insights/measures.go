package insights

import (
	"time"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patient-count",
		Name:        "Patient Count",
		Description: "Total number of registered patients",
		SQL:         `SELECT COUNT(*) AS total FROM patient`,
	},
	{
		ID:          "installments-by-status",
		Name:        "Installments by Status",
		Description: "Count and outstanding value of installments grouped by status",
		SQL: `SELECT status, COUNT(*) AS total, COALESCE(SUM(amount - amount_paid), 0) AS outstanding
			FROM installment GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "budgets-by-status",
		Name:        "Budgets by Status",
		Description: "Count and value of treatment budgets grouped by status",
		SQL: `SELECT status, COUNT(*) AS total, COALESCE(SUM(final_value), 0) AS value
			FROM budget GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "treatment-progress",
		Name:        "Treatment Progress",
		Description: "Count of treatment items grouped by execution status",
		SQL:         `SELECT status, COUNT(*) AS total FROM treatment_item GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "ortho-contracts-by-status",
		Name:        "Orthodontic Contracts by Status",
		Description: "Count and monthly billing of orthodontic contracts grouped by status",
		SQL: `SELECT status, COUNT(*) AS total, COALESCE(SUM(monthly_payment), 0) AS monthly_billing
			FROM ortho_contract GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "expenses-by-category",
		Name:        "Expenses by Category",
		Description: "Count and value of clinic expenses grouped by category",
		SQL: `SELECT category, COUNT(*) AS total, COALESCE(SUM(amount), 0) AS value
			FROM expense GROUP BY category ORDER BY value DESC`,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
