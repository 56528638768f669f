package services

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"receivables/internal/models"
)

// ReceiptRenderer turns invoices and payments into printable documents.
type ReceiptRenderer interface {
	RenderReceipt(invoice *models.Invoice, payment *models.PaymentRecord) ([]byte, error)
	RenderInvoice(invoice *models.Invoice) ([]byte, error)
}

type pdfRenderer struct {
	companyName string
	currency    string
}

// NewPDFRenderer creates an A4 PDF renderer
func NewPDFRenderer(companyName, currency string) ReceiptRenderer {
	return &pdfRenderer{companyName: companyName, currency: currency}
}

const (
	pdfMarginX = 15.0
	pdfMarginY = 15.0
	dateFormat = "02-Jan-2006"
)

func (r *pdfRenderer) newDocument(title string) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMarginX, pdfMarginY, pdfMarginX)
	pdf.SetAutoPageBreak(true, pdfMarginY)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)
	pdf.SetXY(pdfMarginX, pdfMarginY)
	pdf.Cell(0, 10, r.companyName)
	pdf.Ln(10)
	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(0, 8, title)
	pdf.Ln(12)
	return pdf
}

func (r *pdfRenderer) billTo(pdf *gofpdf.Fpdf, customer models.Customer) {
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, "BILL TO:")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{customer.Name, customer.TaxID, customer.Address, customer.Email, customer.Phone} {
		if line == "" {
			continue
		}
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(4)
}

func (r *pdfRenderer) amountRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(130, 6, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 6, value, "", 0, "R", false, 0, "")
	pdf.Ln(6)
}

func (r *pdfRenderer) money(amount string) string {
	return fmt.Sprintf("%s %s", r.currency, amount)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *pdfRenderer) RenderInvoice(invoice *models.Invoice) ([]byte, error) {
	pdf := r.newDocument(fmt.Sprintf("INVOICE %s", invoice.Number))

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Issue date: %s", invoice.IssueDate.Format(dateFormat)))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Due date: %s", invoice.DueDate.Format(dateFormat)))
	pdf.Ln(10)
	r.billTo(pdf, invoice.Customer)

	headers := []string{"Description", "Qty", "Unit price", "Disc %", "Amount"}
	colWidths := []float64{70, 20, 30, 20, 40}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	for i, header := range headers {
		pdf.CellFormat(colWidths[i], 8, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	for _, item := range invoice.Items {
		pdf.CellFormat(colWidths[0], 8, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[1], 8, item.Quantity.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidths[2], 8, item.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidths[3], 8, item.DiscountPercent.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidths[4], 8, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(8)
	}
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 10)
	r.amountRow(pdf, "Subtotal:", r.money(invoice.Subtotal.StringFixed(2)))
	if invoice.DiscountAmount.IsPositive() {
		r.amountRow(pdf, "Discount:", "-"+r.money(invoice.DiscountAmount.StringFixed(2)))
	}
	r.amountRow(pdf, fmt.Sprintf("Tax (%s%%):", invoice.TaxRate.Shift(2).String()), r.money(invoice.Tax.StringFixed(2)))

	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(220, 20, 60)
	r.amountRow(pdf, "TOTAL:", r.money(invoice.Total.StringFixed(2)))
	pdf.SetTextColor(33, 37, 41)
	if invoice.PaidAmount.IsPositive() {
		pdf.SetFont("Arial", "", 10)
		r.amountRow(pdf, "Paid:", r.money(invoice.PaidAmount.StringFixed(2)))
		r.amountRow(pdf, "Outstanding:", r.money(invoice.OutstandingBalance.StringFixed(2)))
	}

	if invoice.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, invoice.Notes, "", "L", false)
	}

	return output(pdf)
}

func (r *pdfRenderer) RenderReceipt(invoice *models.Invoice, payment *models.PaymentRecord) ([]byte, error) {
	pdf := r.newDocument(fmt.Sprintf("PAYMENT RECEIPT %s", shortID(payment.ID.String())))

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice: %s", invoice.Number))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Payment date: %s", payment.PaidAt.Format(dateFormat)))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Method: %s", payment.Method))
	pdf.Ln(6)
	if payment.Reference != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Reference: %s", payment.Reference))
		pdf.Ln(6)
	}
	pdf.Ln(4)
	r.billTo(pdf, invoice.Customer)

	pdf.SetFont("Arial", "B", 10)
	r.amountRow(pdf, "Invoice total:", r.money(invoice.Total.StringFixed(2)))
	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(0, 128, 0)
	r.amountRow(pdf, "Amount received:", r.money(payment.Amount.StringFixed(2)))
	pdf.SetTextColor(33, 37, 41)
	pdf.SetFont("Arial", "", 10)
	r.amountRow(pdf, "Balance due:", r.money(invoice.OutstandingBalance.StringFixed(2)))

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(0, 5, "Thank you for your payment!")

	return output(pdf)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
