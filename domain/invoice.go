package domain

// InvoiceLine is one normalized billing entry. LineTotal is taken from
// the source payload when present, otherwise derived from quantity and
// unit price.
type InvoiceLine struct {
	ID           string  `json:"id"`
	MedicineName string  `json:"medicine_name"`
	Dosage       string  `json:"dosage"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	LineTotal    float64 `json:"line_total"`
}

// Invoice is the canonical invoice shape produced by normalization.
// It is immutable after construction; a fresh fetch yields a fresh value.
type Invoice struct {
	ID            string        `json:"id"`
	CreatedAt     string        `json:"created_at"`
	PatientName   string        `json:"patient_name"`
	Age           string        `json:"age"`
	Gender        string        `json:"gender"`
	Items         []InvoiceLine `json:"items"`
	SubTotal      float64       `json:"sub_total"`
	ServiceCharge float64       `json:"service_charge"`
	TotalAmount   float64       `json:"total_amount"`
	ClinicName    string        `json:"clinic_name"`
	ClinicAddress string        `json:"clinic_address"`
	Cashier       string        `json:"cashier,omitempty"`
}
