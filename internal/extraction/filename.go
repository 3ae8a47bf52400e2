package extraction

import "strings"

// UnidentifiedInvoice is used as the export name when a record has no
// invoice number.
const UnidentifiedInvoice = "Unidentified_Invoice"

var pathSeparators = strings.NewReplacer("/", "_", `\`, "_")

// ExportFilename derives the PDF download name from an invoice number.
func ExportFilename(invoiceNumber string) string {
	name := strings.TrimSpace(pathSeparators.Replace(invoiceNumber))
	if name == "" {
		name = UnidentifiedInvoice
	}
	return name + ".pdf"
}
