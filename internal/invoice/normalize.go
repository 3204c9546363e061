// Package invoice maps loosely-shaped backend invoice payloads into the
// canonical domain.Invoice. The backend has grown several payload shapes
// over time (prescription-keyed and id-keyed sources, renamed fields),
// so every field resolves through an ordered chain of accessors and the
// first defined value wins. Malformed input degrades to defaults rather
// than erroring, so partial and legacy payloads still render.
package invoice

import (
	"encoding/json"
	"strconv"
	"time"

	"rxdesk/m/domain"
)

// lookup probes a payload for one candidate location of a field.
type lookup func(map[string]any) (any, bool)

func key(name string) lookup {
	return func(m map[string]any) (any, bool) {
		v, ok := m[name]
		return v, ok && v != nil
	}
}

// path descends through nested objects, e.g. path("patient", "name").
func path(names ...string) lookup {
	return func(m map[string]any) (any, bool) {
		cur := any(m)
		for _, name := range names {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[name]
			if !ok || cur == nil {
				return nil, false
			}
		}
		return cur, true
	}
}

func firstString(m map[string]any, fallback string, chain ...lookup) string {
	for _, l := range chain {
		if v, ok := l(m); ok {
			if s, ok := asString(v); ok {
				return s
			}
		}
	}
	return fallback
}

func firstNumber(m map[string]any, fallback float64, chain ...lookup) (float64, bool) {
	for _, l := range chain {
		if v, ok := l(m); ok {
			if n, ok := asNumber(v); ok {
				return n, true
			}
		}
	}
	return fallback, false
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case json.Number:
		return s.String(), true
	}
	return "", false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Normalize produces the canonical invoice view for a raw payload, or
// nil when the payload is not a structured object. Calling it twice on
// the same payload yields equal output: the only clock read is the
// created-at fallback, captured once per call.
func Normalize(raw any) *domain.Invoice {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)

	inv := domain.Invoice{
		ID:          firstString(m, "-", key("id"), key("invoiceId"), key("prescriptionId"), key("_id")),
		CreatedAt:   firstString(m, now, key("createdAt"), key("date"), key("invoiceDate")),
		PatientName: firstString(m, "-", key("patientName"), path("patient", "name"), key("fullName")),
		Age:         firstString(m, "-", key("age"), path("patient", "age"), key("patientAge")),
		Gender:      firstString(m, "-", key("gender"), path("patient", "gender"), key("patientGender")),
		ClinicName:  firstString(m, "", key("clinicName"), path("clinic", "name")),
		ClinicAddress: firstString(m, "",
			key("clinicAddress"), path("clinic", "address")),
		Cashier: firstString(m, "", key("cashier"), key("cashierName"), path("cashier", "name")),
		Items:   normalizeItems(m),
	}

	sum := 0.0
	for _, item := range inv.Items {
		sum += item.LineTotal
	}
	inv.SubTotal, _ = firstNumber(m, sum, key("subTotal"), key("subtotal"))
	inv.ServiceCharge, _ = firstNumber(m, 0, key("serviceCharge"), key("service_charge"))
	inv.TotalAmount, _ = firstNumber(m, inv.SubTotal+inv.ServiceCharge, key("totalAmount"), key("grandTotal"))
	return &inv
}

func normalizeItems(m map[string]any) []domain.InvoiceLine {
	var rawItems []any
	for _, l := range []lookup{key("items"), key("medicines")} {
		if v, ok := l(m); ok {
			if list, ok := v.([]any); ok {
				rawItems = list
				break
			}
		}
	}

	items := []domain.InvoiceLine{}
	for i, raw := range rawItems {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		line := domain.InvoiceLine{
			ID:           firstString(entry, strconv.Itoa(i+1), key("id"), key("medicineId")),
			MedicineName: firstString(entry, "-", key("medicineName"), key("name"), key("brandName")),
			Dosage:       firstString(entry, "", key("dosage"), key("dose"), key("strength")),
		}
		line.Quantity, _ = firstNumber(entry, 0, key("dispenseQuantity"), key("quantity"), key("qty"))
		if line.Quantity < 0 {
			line.Quantity = 0
		}
		line.UnitPrice, _ = firstNumber(entry, 0, key("unitPrice"), key("price"))
		if line.UnitPrice < 0 {
			line.UnitPrice = 0
		}
		// A total present in the source is trusted as-is; only a missing
		// total is derived.
		if total, ok := firstNumber(entry, 0, key("totalPrice"), key("total")); ok {
			line.LineTotal = total
		} else {
			line.LineTotal = line.Quantity * line.UnitPrice
		}
		items = append(items, line)
	}
	return items
}
