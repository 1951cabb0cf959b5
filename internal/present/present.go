// Package present renders normalized records for the console.
package present

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cast"

	"ipwatch/internal/geo"
)

const (
	// Header opens every rendered block.
	Header = "========== Public IP Address Information =========="

	labelWidth = 20
	missing    = "N/A"
)

// Footer closes every rendered block.
var Footer = strings.Repeat("=", len(Header))

// Labels maps canonical fields to display labels.
var Labels = map[string]string{
	geo.FieldIP:          "Public IP Address",
	geo.FieldVersion:     "IP Version",
	geo.FieldCity:        "City",
	geo.FieldRegion:      "Region",
	geo.FieldCountry:     "Country",
	geo.FieldCountryCode: "Country Code",
	geo.FieldLatitude:    "Latitude",
	geo.FieldLongitude:   "Longitude",
	geo.FieldTimezone:    "Timezone",
	geo.FieldISP:         "ISP / Provider",
	geo.FieldASN:         "ASN",
	geo.FieldOrg:         "Organization",
}

// Label returns the display label for field, or field itself when unknown.
func Label(field string) string {
	if l, ok := Labels[field]; ok {
		return l
	}
	return field
}

// FormatValue renders a record value for display. It returns "" for nil.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// Render returns the banner-wrapped block for fields, in the order given.
func Render(rec geo.Record, fields []string) string {
	var b strings.Builder
	b.WriteString("\n" + Header + "\n")
	writeLines(&b, rec, fields)
	b.WriteString(Footer + "\n\n")
	return b.String()
}

func writeLines(b *strings.Builder, rec geo.Record, fields []string) {
	for _, f := range fields {
		value := missing
		if v, ok := rec.Get(f); ok {
			value = FormatValue(v)
		}
		fmt.Fprintf(b, "%-*s: %s\n", labelWidth, Label(f), value)
	}
}

// Printer writes rendered blocks to an output stream.
type Printer struct {
	w      io.Writer
	banner *color.Color
}

// NewPrinter returns a Printer for w. When colorize is true the banner
// lines are printed in bold cyan.
func NewPrinter(w io.Writer, colorize bool) *Printer {
	banner := color.New(color.FgCyan, color.Bold)
	if colorize {
		banner.EnableColor()
	} else {
		banner.DisableColor()
	}
	return &Printer{w: w, banner: banner}
}

// Print writes the block for rec to the underlying writer.
func (p *Printer) Print(rec geo.Record, fields []string) error {
	var b strings.Builder
	b.WriteString("\n" + p.banner.Sprint(Header) + "\n")
	writeLines(&b, rec, fields)
	b.WriteString(p.banner.Sprint(Footer) + "\n\n")
	_, err := io.WriteString(p.w, b.String())
	return err
}
