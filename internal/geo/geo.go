// Package geo maps provider-specific geolocation payloads onto a fixed
// canonical record.
package geo

import (
	"strings"

	"github.com/spf13/cast"
)

// RawRecord is a decoded JSON object exactly as returned by a provider.
type RawRecord map[string]any

// Canonical field names.
const (
	FieldIP          = "ip"
	FieldVersion     = "version"
	FieldCity        = "city"
	FieldRegion      = "region"
	FieldCountry     = "country"
	FieldCountryCode = "country_code"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldTimezone    = "timezone"
	FieldISP         = "isp"
	FieldASN         = "asn"
	FieldOrg         = "org"
)

// IP version labels.
const (
	IPv4 = "IPv4"
	IPv6 = "IPv6"
)

// CanonicalFields lists every field a Record carries, in display order.
var CanonicalFields = []string{
	FieldIP,
	FieldVersion,
	FieldCity,
	FieldRegion,
	FieldCountry,
	FieldCountryCode,
	FieldLatitude,
	FieldLongitude,
	FieldTimezone,
	FieldISP,
	FieldASN,
	FieldOrg,
}

// Rule names the raw keys that may carry a canonical field.
// Candidates are tried left to right and the first non-null value wins.
type Rule struct {
	Field      string
	Candidates []string
}

// Rules is the coalescing table. Supporting another provider means
// adding its key names here.
var Rules = []Rule{
	{Field: FieldIP, Candidates: []string{"ip", "query", "ip_address"}},
	{Field: FieldCity, Candidates: []string{"city"}},
	{Field: FieldRegion, Candidates: []string{"region", "region_name"}},
	{Field: FieldCountry, Candidates: []string{"country_name", "country"}},
	{Field: FieldCountryCode, Candidates: []string{"country", "country_code"}},
	{Field: FieldLatitude, Candidates: []string{"latitude", "lat"}},
	{Field: FieldLongitude, Candidates: []string{"longitude", "lon", "lng"}},
	{Field: FieldTimezone, Candidates: []string{"timezone"}},
	{Field: FieldISP, Candidates: []string{"org", "isp"}},
	{Field: FieldASN, Candidates: []string{"asn", "as"}},
	{Field: FieldOrg, Candidates: []string{"org"}},
}

// Record is a normalized geolocation result. A nil value means the
// provider did not supply the field.
type Record map[string]any

// Normalize builds a Record from raw. It never fails; missing keys
// simply yield nil values.
func Normalize(raw RawRecord) Record {
	rec := make(Record, len(CanonicalFields))
	for _, f := range CanonicalFields {
		rec[f] = nil
	}
	for _, rule := range Rules {
		rec[rule.Field] = coalesce(raw, rule.Candidates)
	}
	rec.setVersion()
	return rec
}

func coalesce(raw RawRecord, keys []string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// IPVersion reports "IPv6" when ip contains a colon and "IPv4" otherwise.
// The second result is false when ip is nil.
func IPVersion(ip any) (string, bool) {
	if ip == nil {
		return "", false
	}
	if strings.Contains(cast.ToString(ip), ":") {
		return IPv6, true
	}
	return IPv4, true
}

func (r Record) setVersion() {
	if v, ok := IPVersion(r[FieldIP]); ok {
		r[FieldVersion] = v
		return
	}
	r[FieldVersion] = nil
}

// OverrideIP replaces the ip field and recomputes version.
func (r Record) OverrideIP(ip string) {
	r[FieldIP] = ip
	r.setVersion()
}

// Get returns the value stored for field. ok is false for nil values and
// for names outside the canonical set.
func (r Record) Get(field string) (any, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// IsCanonical reports whether name is one of CanonicalFields.
func IsCanonical(name string) bool {
	for _, f := range CanonicalFields {
		if f == name {
			return true
		}
	}
	return false
}
