package domain

import "math"

// RequestStatus tags a prescription request with its place in the
// dispensing pipeline. A request carries exactly one status; the
// per-status collections are derived views.
type RequestStatus string

const (
	StatusRequested RequestStatus = "requested"
	StatusPending   RequestStatus = "pending"
	StatusFulfilled RequestStatus = "fulfilled"
)

// PrescriptionLine is one drug entry within a request. Drug is a lookup
// key into the inventory, not an owning reference.
type PrescriptionLine struct {
	LineNo       int64   `db:"line_no" json:"line_no"`
	Drug         string  `db:"drug" json:"drug"`
	Dose         float64 `db:"dose" json:"dose"`
	TimesPerDay  int64   `db:"times_per_day" json:"times_per_day"`
	DurationDays int64   `db:"duration_days" json:"duration_days"`
	FormType     string  `db:"form_type" json:"form_type"`
	Dispensed    bool    `db:"dispensed" json:"dispensed"`
}

// RequiredQuantity is always derived, never stored: it drives both the
// availability gate and the deduction amount. Fractional doses round up
// to whole units.
func (l PrescriptionLine) RequiredQuantity() int64 {
	return int64(math.Ceil(l.Dose * float64(l.TimesPerDay) * float64(l.DurationDays)))
}

type FulfillmentRequest struct {
	ID          int64              `db:"id" json:"id"`
	PatientName string             `db:"patient_name" json:"patient_name"`
	Age         int64              `db:"age" json:"age"`
	Gender      string             `db:"gender" json:"gender"`
	Status      RequestStatus      `db:"status" json:"status"`
	Remarks     string             `db:"remarks" json:"remarks"`
	RequestedAt string             `db:"requested_at" json:"requested_at"`
	IssuedAt    *string            `db:"issued_at" json:"issued_at,omitempty"`
	Lines       []PrescriptionLine `json:"lines"`
}

// DispensedFlags reports per-drug dispensing decisions. A drug maps to
// true only when every line referencing it is dispensed; the per-line
// flags remain the source of truth.
func (r FulfillmentRequest) DispensedFlags() map[string]bool {
	flags := make(map[string]bool, len(r.Lines))
	for _, line := range r.Lines {
		done, seen := flags[line.Drug]
		if !seen {
			flags[line.Drug] = line.Dispensed
			continue
		}
		flags[line.Drug] = done && line.Dispensed
	}
	return flags
}
