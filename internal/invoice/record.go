// Package invoice implements the invoice field reconciliation and
// normalization pipeline: converting the loosely-typed extractor output
// into one canonical record, and normalizing locale-formatted amounts
// and dates into numeric/ISO values.
package invoice

import "encoding/json"

// The seven canonical concepts, as English keys. Order matters: it is the
// order concepts are resolved in and the order keys appear in JSON output.
var concepts = []string{
	"supplier_name",
	"company_name",
	"invoice_number",
	"invoice_date",
	"amount",
	"vat_amount",
	"description",
}

// germanKey pairs every English canonical key with its German counterpart.
// Both keys always carry the same value in a reconciled record.
var germanKey = map[string]string{
	"supplier_name":  "Lieferantename",
	"company_name":   "Empfängerfirma",
	"invoice_number": "Rechnungsnummer",
	"invoice_date":   "Rechnungsdatum",
	"amount":         "Gesamtbetrag",
	"vat_amount":     "Mehrwertsteuerbetrag",
	"description":    "Leistungsbeschreibung",
}

// Sentinel strings extractors emit for "field not found". They count as
// absent for duplicate detection and review flagging, but are preserved
// verbatim in the record itself.
var sentinelValues = map[string]bool{
	"":               true,
	"Unknown":        true,
	"Not found":      true,
	"Nicht gefunden": true,
}

// IsSentinel reports whether v means "field not found".
func IsSentinel(v string) bool {
	return sentinelValues[v]
}

// Record is the canonical reconciled invoice representation. All values are
// strings in their original locale form; numeric conversion happens at
// finalize time via NormalizeAmount/NormalizeDate.
type Record struct {
	SupplierName  string
	CompanyName   string
	InvoiceNumber string
	InvoiceDate   string
	Amount        string
	VATAmount     string
	Description   string
}

// field maps a canonical concept to its slot in the record.
func (r *Record) field(concept string) *string {
	switch concept {
	case "supplier_name":
		return &r.SupplierName
	case "company_name":
		return &r.CompanyName
	case "invoice_number":
		return &r.InvoiceNumber
	case "invoice_date":
		return &r.InvoiceDate
	case "amount":
		return &r.Amount
	case "vat_amount":
		return &r.VATAmount
	case "description":
		return &r.Description
	}
	return nil
}

// Get returns the value for a canonical English concept key.
func (r *Record) Get(concept string) string {
	if f := r.field(concept); f != nil {
		return *f
	}
	return ""
}

// ToMap renders the record with both key vocabularies populated, so every
// downstream consumer can read either the English or the German key.
func (r *Record) ToMap() map[string]string {
	m := make(map[string]string, len(concepts)*2)
	for _, concept := range concepts {
		v := r.Get(concept)
		m[concept] = v
		m[germanKey[concept]] = v
	}
	return m
}

// MarshalJSON emits the dual-vocabulary form. This is the wire format for
// the canonical record: exactly the German/English key pairs, nothing else.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// UnmarshalJSON accepts any raw field bag and reconciles it, so a Record
// round-trips through JSON without losing the sync invariant.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Reconcile(raw)
	return nil
}
