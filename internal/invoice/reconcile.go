package invoice

import (
	"sort"
	"strconv"
	"strings"
)

// RawExtraction is the opaque, untrusted output of an extractor. Keys may
// come from the German vocabulary, the English vocabulary, synonym lists or
// nested sub-mappings; values may be strings or numbers. It never crosses
// the reconciliation boundary: Reconcile turns it into a Record immediately.
type RawExtraction map[string]any

// fieldSynonyms lists, per canonical concept, the acceptable source-field
// names in priority order: English primary, German primary, then synonyms.
// First match wins.
var fieldSynonyms = map[string][]string{
	"supplier_name":  {"supplier_name", "Lieferantename", "vendor_name", "supplier", "vendor"},
	"company_name":   {"company_name", "Empfängerfirma", "recipient", "company"},
	"invoice_number": {"invoice_number", "Rechnungsnummer", "invoice_id", "invoice #", "invoice_no"},
	"invoice_date":   {"invoice_date", "Rechnungsdatum", "date", "invoice_dt"},
	"amount":         {"amount", "Gesamtbetrag", "total_amount", "total", "invoice_amount", "gross_amount"},
	"vat_amount":     {"vat_amount", "Mehrwertsteuerbetrag", "tax_amount", "vat", "tax", "sales_tax"},
	"description":    {"description", "Leistungsbeschreibung", "details", "service_description", "invoice_description"},
}

// controlKeys are extractor bookkeeping fields that must never leak into
// the canonical field set.
var controlKeys = map[string]bool{
	"success": true,
	"error":   true,
	"skipped": true,
}

// Reconcile merges a raw extraction into one canonical Record. Candidate
// sources are scanned in priority order (the mapping itself first, then any
// sub-mapping under "invoice_data" or "data"); within a source the synonym
// list is scanned in priority order, and the first non-empty value wins.
// Concepts still unresolved afterwards get one lower-precision pass: all
// sources are flattened (nested keys joined with "_") and each synonym is
// matched case-insensitively as a substring of the flattened key names.
func Reconcile(raw RawExtraction) Record {
	var rec Record
	if raw == nil {
		return rec
	}

	sources := candidateSources(raw)

	for _, concept := range concepts {
		slot := rec.field(concept)
	resolve:
		for _, src := range sources {
			for _, name := range fieldSynonyms[concept] {
				if v, ok := src[name]; ok {
					if s := stringify(v); s != "" {
						*slot = s
						break resolve
					}
				}
			}
		}
	}

	// Fallback pass over flattened keys, only for unresolved concepts.
	// The flattened fields keep a stable order so the same extraction
	// always resolves to the same values.
	var flat []flatField
	for _, concept := range concepts {
		slot := rec.field(concept)
		if *slot != "" {
			continue
		}
		if flat == nil {
			flat = flattenSources(sources)
		}
	match:
		for _, f := range flat {
			for _, name := range fieldSynonyms[concept] {
				if strings.Contains(strings.ToLower(f.key), strings.ToLower(name)) {
					*slot = f.val
					break match
				}
			}
		}
	}

	return rec
}

// candidateSources returns the raw mapping plus any nested sub-mappings
// found under the conventional wrapper keys, in source-priority order.
func candidateSources(raw RawExtraction) []map[string]any {
	sources := []map[string]any{raw}
	for _, wrapper := range []string{"invoice_data", "data"} {
		if nested, ok := raw[wrapper].(map[string]any); ok {
			sources = append(sources, nested)
		}
	}
	return sources
}

// flatField is one flattened key/value pair of a candidate source.
type flatField struct {
	key string
	val string
}

// flattenSources recursively flattens every candidate source, joining
// nested keys with "_". Extractor control fields are excluded. Keys are
// walked in sorted order at every level so the result is deterministic.
func flattenSources(sources []map[string]any) []flatField {
	var flat []flatField
	seen := make(map[string]bool)
	var walk func(m map[string]any, prefix string)
	walk = func(m map[string]any, prefix string) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if prefix == "" && controlKeys[strings.ToLower(k)] {
				continue
			}
			if nested, ok := m[k].(map[string]any); ok {
				walk(nested, prefix+k+"_")
				continue
			}
			if s := stringify(m[k]); s != "" && !seen[prefix+k] {
				seen[prefix+k] = true
				flat = append(flat, flatField{key: prefix + k, val: s})
			}
		}
	}
	for _, src := range sources {
		walk(src, "")
	}
	return flat
}

// stringify renders a raw extraction value as a string. Non-scalar and
// empty values count as absent.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
