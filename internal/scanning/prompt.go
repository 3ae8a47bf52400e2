package scanning

// ReceiptPrompt is the instruction sent with every receipt image. It fixes
// the record schema, the field order and the defaults for missing values.
const ReceiptPrompt = `Analyze this sales invoice or receipt (often pharmaceutical or wholesale) and extract every line item into a single JSON object.

The object must contain:
- merchant: string (store or supplier name)
- date: string (invoice date, YYYY-MM-DD)
- invoice_number: string (bill or invoice number)
- total_net_amount: number (final amount payable)
- total_discount: number (discount for the whole bill as a percentage, 0 if none)
- total_gst: number (GST/tax for the whole bill as a percentage, 0 if none)
- items: array of objects, each with these fields in exactly this order:
    - name: string (item name or description)
    - hsn: string (HSN/SAC code)
    - mfg: string (manufacturer or brand)
    - pack: string (pack size, e.g. 10 TAB)
    - batch: string (batch number)
    - expiry: string (expiry date, YYYY-MM-DD or MM/YYYY)
    - quantity: number (quantity purchased)
    - free: number (free quantity, 0 if none)
    - mrp_old: number (old MRP, 0 if not present)
    - mrp_new: number (new or current MRP)
    - mrp: number (MRP the unit is sold at)
    - rate: number (rate the unit is sold at)
    - discount_percentage: number (item discount percentage, 0 if none)
    - gst_percentage: number (item GST percentage)
    - amount: number (final line total)

When a field does not appear on the receipt, use 0 for numbers and "" for strings. Never use null.
Reply with the JSON object only: no explanation, no markdown, no code fences.`
