package scanning

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const fence = "```"

// jsonLabel matches a leading "json" tag, optionally after a marker such
// as '>' or a stray backtick.
var jsonLabel = regexp.MustCompile("(?i)^[>`~]*\\s*json\\b\\s*:?")

// recordSchema checks field types only. Every field may be absent or null
// and unknown fields are allowed.
var recordSchema = jsonschema.MustCompileString("receipt.json", `{
  "type": "object",
  "properties": {
    "merchant":         {"type": ["string", "null"]},
    "date":             {"type": ["string", "null"]},
    "invoice_number":   {"type": ["string", "null"]},
    "total_net_amount": {"type": ["number", "null"]},
    "total_discount":   {"type": ["number", "null"]},
    "total_gst":        {"type": ["number", "null"]},
    "items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "name":                {"type": ["string", "null"]},
          "hsn":                 {"type": ["string", "null"]},
          "mfg":                 {"type": ["string", "null"]},
          "pack":                {"type": ["string", "null"]},
          "batch":               {"type": ["string", "null"]},
          "expiry":              {"type": ["string", "null"]},
          "quantity":            {"type": ["number", "null"]},
          "free":                {"type": ["number", "null"]},
          "mrp_old":             {"type": ["number", "null"]},
          "mrp_new":             {"type": ["number", "null"]},
          "mrp":                 {"type": ["number", "null"]},
          "rate":                {"type": ["number", "null"]},
          "discount_percentage": {"type": ["number", "null"]},
          "gst_percentage":      {"type": ["number", "null"]},
          "amount":              {"type": ["number", "null"]}
        }
      }
    }
  }
}`)

// ParseError is returned when a model reply is not a usable JSON record.
// Raw holds the reply exactly as received.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing model reply: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Clean strips the wrappers models put around JSON: code fences (tagged or
// bare) and a leading "json" label. Each step tolerates its wrapper being
// absent.
func Clean(raw string) string {
	text := strings.TrimSpace(raw)

	if len(text) >= len(fence+"json") && strings.EqualFold(text[:len(fence+"json")], fence+"json") {
		text = text[len(fence+"json"):]
		text = strings.TrimSpace(strings.ReplaceAll(text, fence, ""))
	} else if strings.HasPrefix(text, fence) {
		text = strings.TrimSpace(strings.ReplaceAll(text, fence, ""))
	}

	text = jsonLabel.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Sanitize cleans a model reply and parses it into a Record. Missing and
// null fields take their zero value.
func Sanitize(raw string) (Record, error) {
	text := Clean(raw)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return Record{}, &ParseError{Raw: raw, Err: fmt.Errorf("unmarshaling json: %w", err)}
	}
	if err := recordSchema.Validate(doc); err != nil {
		return Record{}, &ParseError{Raw: raw, Err: fmt.Errorf("validating record: %w", err)}
	}

	var rec Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return Record{}, &ParseError{Raw: raw, Err: fmt.Errorf("decoding record: %w", err)}
	}

	return tidy(rec), nil
}

// dateLayouts are tried, in order, when a date is not already ISO formatted.
// Invoices in the target market print day-first dates.
var dateLayouts = []string{
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"02 Jan 2006",
	"02-Jan-2006",
}

func tidy(rec Record) Record {
	rec.Merchant = strings.TrimSpace(rec.Merchant)
	rec.InvoiceNumber = strings.TrimSpace(rec.InvoiceNumber)
	rec.Date = normalizeDate(rec.Date)
	if rec.Items == nil {
		rec.Items = []LineItem{}
	}
	for i := range rec.Items {
		rec.Items[i].Name = strings.TrimSpace(rec.Items[i].Name)
	}
	return rec
}

// normalizeDate rewrites recognised dates as YYYY-MM-DD. Anything else is
// kept as the model returned it.
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	if d, err := time.Parse(time.DateOnly, date); err == nil {
		return d.Format(time.DateOnly)
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, date); err == nil {
			return d.Format(time.DateOnly)
		}
	}
	return date
}
