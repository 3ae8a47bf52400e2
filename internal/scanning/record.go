package scanning

import (
	"encoding/json"
	"slices"
)

// LineItem is a single row of an invoice. Field order matches the export format.
type LineItem struct {
	Name               string  `json:"name"`
	HSN                string  `json:"hsn"`
	Mfg                string  `json:"mfg"`
	Pack               string  `json:"pack"`
	Batch              string  `json:"batch"`
	Expiry             string  `json:"expiry"`
	Quantity           float64 `json:"quantity"`
	Free               float64 `json:"free"`
	MRPOld             float64 `json:"mrp_old"`
	MRPNew             float64 `json:"mrp_new"`
	MRP                float64 `json:"mrp"`
	Rate               float64 `json:"rate"`
	DiscountPercentage float64 `json:"discount_percentage"`
	GSTPercentage      float64 `json:"gst_percentage"`
	Amount             float64 `json:"amount"`
}

// Record is the structured data extracted from one receipt
type Record struct {
	Merchant       string     `json:"merchant"`
	Date           string     `json:"date"` // YYYY-MM-DD
	InvoiceNumber  string     `json:"invoice_number"`
	TotalNetAmount float64    `json:"total_net_amount"`
	TotalDiscount  float64    `json:"total_discount"` // percent
	TotalGST       float64    `json:"total_gst"`      // percent
	Items          []LineItem `json:"items"`
}

// Clone returns a copy that shares no memory with r
func (r Record) Clone() Record {
	r.Items = slices.Clone(r.Items)
	if r.Items == nil {
		r.Items = []LineItem{}
	}
	return r
}

// JSON returns the indented export form of the record
func (r Record) JSON() ([]byte, error) {
	return json.MarshalIndent(r.Clone(), "", "  ")
}
