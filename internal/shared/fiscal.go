package shared

import "time"

// FiscalYear returns the fiscal year an issue date belongs to. Solera
// companies close on the calendar year.
func FiscalYear(t time.Time) int {
	return t.Year()
}

// DueDate computes the payment deadline from an issue date and term days.
func DueDate(issue time.Time, termDays int) time.Time {
	return issue.AddDate(0, 0, termDays)
}

// DaysOverdue returns how many whole days past due an invoice is at asOf.
// Zero or negative means not yet due.
func DaysOverdue(due, asOf time.Time) int {
	return int(asOf.Sub(due).Hours() / 24)
}
