package tadabase

import (
	"encoding/json"
	"strings"
)

// Record is one raw vendor record. Field shapes vary (a connection field is
// sometimes a string, sometimes an array of ids), so values stay raw until
// read through the accessors below.
type Record map[string]json.RawMessage

// IDVal is an entry of a "field_N_val" expansion: the connected record's id
// and its display value.
type IDVal struct {
	ID  string `json:"id"`
	Val string `json:"val"`
}

// DateRange is the payload of a date range field.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ID returns the record id.
func (r Record) ID() string {
	return r.String("id")
}

// Has reports whether the field is present and not null.
func (r Record) Has(field string) bool {
	raw, ok := r[field]
	return ok && string(raw) != "null"
}

// String reads a scalar field. Arrays yield their first element; numbers
// yield their literal text; missing and null fields yield "".
func (r Record) String(field string) string {
	raw, ok := r[field]
	if !ok {
		return ""
	}
	return scalar(raw)
}

// Strings reads a list field, dropping empty entries. A scalar becomes a
// one-element list.
func (r Record) Strings(field string) []string {
	raw, ok := r[field]
	if !ok {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		if s := scalar(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := scalar(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Vals reads a "_val" expansion. Malformed entries are skipped.
func (r Record) Vals(field string) []IDVal {
	raw, ok := r[field]
	if !ok {
		return nil
	}
	var vals []IDVal
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil
	}
	out := vals[:0]
	for _, v := range vals {
		if v.ID != "" {
			out = append(out, v)
		}
	}
	return out
}

// Range reads a date range field. ok is false when either bound is missing.
func (r Record) Range(field string) (DateRange, bool) {
	raw, ok := r[field]
	if !ok {
		return DateRange{}, false
	}
	var dr DateRange
	if err := json.Unmarshal(raw, &dr); err != nil {
		return DateRange{}, false
	}
	dr.Start = strings.TrimSpace(dr.Start)
	dr.End = strings.TrimSpace(dr.End)
	return dr, dr.Start != "" && dr.End != ""
}

func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		return scalar(list[0])
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
