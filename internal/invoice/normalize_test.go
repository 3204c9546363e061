package invoice

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decode(t *testing.T, src string) any {
	t.Helper()
	var raw any
	if err := json.Unmarshal([]byte(src), &raw); err != nil {
		t.Fatalf("fixture decode: %v", err)
	}
	return raw
}

func TestNormalizeNonObject(t *testing.T) {
	for _, src := range []string{`null`, `"invoice"`, `42`, `[1,2]`} {
		if inv := Normalize(decode(t, src)); inv != nil {
			t.Fatalf("expected nil for %s, got %+v", src, inv)
		}
	}
	if inv := Normalize(nil); inv != nil {
		t.Fatalf("expected nil for untyped nil")
	}
}

func TestNormalizeEmptyObject(t *testing.T) {
	inv := Normalize(decode(t, `{}`))
	if inv == nil {
		t.Fatalf("expected invoice for empty object")
	}
	if inv.TotalAmount != 0 || inv.SubTotal != 0 {
		t.Fatalf("totals expected 0: %+v", inv)
	}
	if len(inv.Items) != 0 {
		t.Fatalf("items expected empty")
	}
	if inv.PatientName != "-" || inv.Age != "-" || inv.Gender != "-" || inv.ID != "-" {
		t.Fatalf("fallback literals missing: %+v", inv)
	}
	if inv.CreatedAt == "" {
		t.Fatalf("created_at fallback missing")
	}
}

func TestNormalizeDerivesLineAndTotals(t *testing.T) {
	inv := Normalize(decode(t, `{"items":[{"quantity":2,"unitPrice":50}]}`))
	if len(inv.Items) != 1 {
		t.Fatalf("expected one line")
	}
	line := inv.Items[0]
	if line.LineTotal != 100 {
		t.Fatalf("line total expected 100, got %v", line.LineTotal)
	}
	if inv.SubTotal != 100 || inv.TotalAmount != 100 || inv.ServiceCharge != 0 {
		t.Fatalf("totals wrong: %+v", inv)
	}
}

func TestSourceTotalsTrusted(t *testing.T) {
	// A present totalPrice is never reconciled against quantity * price.
	inv := Normalize(decode(t, `{"items":[{"quantity":2,"unitPrice":50,"totalPrice":90}],"subTotal":95,"serviceCharge":10}`))
	if inv.Items[0].LineTotal != 90 {
		t.Fatalf("source total not trusted: %v", inv.Items[0].LineTotal)
	}
	if inv.SubTotal != 95 {
		t.Fatalf("source subTotal not trusted: %v", inv.SubTotal)
	}
	if inv.TotalAmount != 105 {
		t.Fatalf("totalAmount expected subTotal+serviceCharge=105, got %v", inv.TotalAmount)
	}
}

func TestPatientFallbackChain(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`{"patientName":"Rahim","patient":{"name":"Karim"},"fullName":"Salam"}`, "Rahim"},
		{`{"patient":{"name":"Karim"},"fullName":"Salam"}`, "Karim"},
		{`{"fullName":"Salam"}`, "Salam"},
		{`{}`, "-"},
	}
	for _, c := range cases {
		if got := Normalize(decode(t, c.src)).PatientName; got != c.want {
			t.Fatalf("%s: got %q, want %q", c.src, got, c.want)
		}
	}
}

func TestLineFieldChains(t *testing.T) {
	inv := Normalize(decode(t, `{"medicines":[
        {"name":"Napa","dose":"500mg","dispenseQuantity":3,"qty":99,"price":8,"total":24},
        {"medicineName":"Seclo","qty":1}
    ]}`))
	if len(inv.Items) != 2 {
		t.Fatalf("expected 2 lines from medicines key, got %d", len(inv.Items))
	}
	first := inv.Items[0]
	if first.MedicineName != "Napa" || first.Dosage != "500mg" {
		t.Fatalf("name/dosage chains: %+v", first)
	}
	if first.Quantity != 3 {
		t.Fatalf("dispenseQuantity must win over qty: %v", first.Quantity)
	}
	if first.UnitPrice != 8 || first.LineTotal != 24 {
		t.Fatalf("price/total chains: %+v", first)
	}
	second := inv.Items[1]
	if second.Quantity != 1 || second.UnitPrice != 0 || second.LineTotal != 0 {
		t.Fatalf("defaults on sparse line: %+v", second)
	}
}

func TestAgeNumberCoercion(t *testing.T) {
	inv := Normalize(decode(t, `{"age":45}`))
	if inv.Age != "45" {
		t.Fatalf("numeric age expected \"45\", got %q", inv.Age)
	}
}

func TestMalformedItemsDegrade(t *testing.T) {
	inv := Normalize(decode(t, `{"items":["oops",{"quantity":"2","unitPrice":"50"},null]}`))
	if len(inv.Items) != 1 {
		t.Fatalf("only the object entry should survive, got %d", len(inv.Items))
	}
	if inv.Items[0].LineTotal != 100 {
		t.Fatalf("string numbers should coerce: %+v", inv.Items[0])
	}
}

func TestDeterministic(t *testing.T) {
	raw := decode(t, `{"id":"inv-7","createdAt":"2026-08-01T10:00:00Z","items":[{"quantity":2,"unitPrice":50}]}`)
	a := Normalize(raw)
	b := Normalize(raw)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("normalize not deterministic:\n%+v\n%+v", a, b)
	}
	if a.CreatedAt != "2026-08-01T10:00:00Z" {
		t.Fatalf("source created_at not used: %q", a.CreatedAt)
	}
}
