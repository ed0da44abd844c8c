// Package models holds the canonical invoice representation consumed by the
// reference and stamping engines. NormalizedInvoice is produced upstream by
// the ERP/CRM adapters; this package only defines its identity-relevant shape.
package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "stampgate/pkg/domain-errors"
)

// LineTotal is one line's settled amount. Descriptions and tax breakdowns do
// not affect identity and are intentionally absent.
type LineTotal struct {
	Amount decimal.Decimal `json:"amount"`
}

// NormalizedInvoice is the order-independent field set that determines an
// invoice's identity and is covered by the cryptographic stamp. Immutable
// once constructed.
type NormalizedInvoice struct {
	SourceInvoiceID  string      `json:"source_invoice_id"`
	SupplierTaxID    string      `json:"supplier_tax_id"`
	CustomerTaxID    string      `json:"customer_tax_id"`
	Currency         string      `json:"currency"`
	IssueDate        time.Time   `json:"issue_date"`
	DocumentTypeCode string      `json:"document_type_code"`
	Lines            []LineTotal `json:"lines"`
}

// minorUnitExponent deviates from the usual 2 for a handful of currencies.
var minorUnitExponent = map[string]int32{
	"JPY": 0, "KRW": 0, "VND": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "TND": 3,
}

func exponentFor(currency string) int32 {
	if exp, ok := minorUnitExponent[currency]; ok {
		return exp
	}
	return 2
}

// Validate reports the first missing mandatory field. A failure here is
// fatal for reference generation and never retried.
func (inv NormalizedInvoice) Validate() error {
	switch {
	case strings.TrimSpace(inv.SourceInvoiceID) == "":
		return dErrors.New(dErrors.CodeBadRequest, "source_invoice_id is required")
	case strings.TrimSpace(inv.SupplierTaxID) == "":
		return dErrors.New(dErrors.CodeBadRequest, "supplier_tax_id is required")
	case strings.TrimSpace(inv.CustomerTaxID) == "":
		return dErrors.New(dErrors.CodeBadRequest, "customer_tax_id is required")
	case len(strings.TrimSpace(inv.Currency)) != 3:
		return dErrors.New(dErrors.CodeBadRequest, "currency must be a 3-letter code")
	case inv.IssueDate.IsZero():
		return dErrors.New(dErrors.CodeBadRequest, "issue_date is required")
	case strings.TrimSpace(inv.DocumentTypeCode) == "":
		return dErrors.New(dErrors.CodeBadRequest, "document_type_code is required")
	case len(inv.Lines) == 0:
		return dErrors.New(dErrors.CodeBadRequest, "at least one line total is required")
	}
	for _, line := range inv.Lines {
		if line.Amount.IsNegative() {
			return dErrors.New(dErrors.CodeBadRequest, "line amounts must not be negative")
		}
	}
	return nil
}

// CanonicalBytes renders the invoice into the deterministic byte form hashed
// and signed by the engines. Tax ids are trimmed and case-folded, dates
// reduced to their ISO-8601 day, amounts to minor units, and line order is
// erased by sorting.
func (inv NormalizedInvoice) CanonicalBytes() []byte {
	currency := strings.ToUpper(strings.TrimSpace(inv.Currency))
	exp := exponentFor(currency)

	minor := make([]string, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		minor = append(minor, line.Amount.Shift(exp).Truncate(0).String())
	}
	sort.Strings(minor)

	var buf bytes.Buffer
	buf.WriteString(strings.TrimSpace(inv.DocumentTypeCode))
	buf.WriteByte('|')
	buf.WriteString(inv.IssueDate.UTC().Format("2006-01-02"))
	buf.WriteByte('|')
	buf.WriteString(currency)
	buf.WriteByte('|')
	buf.WriteString(foldTaxID(inv.SupplierTaxID))
	buf.WriteByte('|')
	buf.WriteString(foldTaxID(inv.CustomerTaxID))
	buf.WriteByte('|')
	buf.WriteString(strings.Join(minor, ","))
	return buf.Bytes()
}

// ContentHash is the duplicate-index key: SHA-256 over the canonical bytes.
func (inv NormalizedInvoice) ContentHash() string {
	sum := sha256.Sum256(inv.CanonicalBytes())
	return hex.EncodeToString(sum[:])
}

// foldTaxID normalizes only tax identifiers; other strings keep their case.
func foldTaxID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
