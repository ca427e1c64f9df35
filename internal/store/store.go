// Package store persists raw invoice records and serves the lookups the
// assistant needs: all invoices for a customer, or one invoice pinned by
// its number.
//
// Records are stored as the raw JSON documents they arrive as. Identity
// fields (customer number, invoice number) are extracted once on write so
// lookups never have to parse every stored document.
package store

import (
	"context"
	"errors"

	"github.com/0-uddeshya-0/klarbill/internal/document"
)

// Sentinel errors for lookup outcomes.
var (
	// ErrNotFound means no record matched the given identifiers.
	ErrNotFound = errors.New("store: record not found")
)

// Record pairs a stored document with its identity fields.
type Record struct {
	ID             string
	CustomerNumber string
	InvoiceNumber  string
	Doc            document.Value
}

// InvoiceStore is the persistence surface used by the assistant. Lookup
// with an empty invoiceNumber returns every record for the customer, so
// the caller can distinguish "nothing", "exactly one" and "needs
// disambiguation".
type InvoiceStore interface {
	// Put stores or replaces a record under the given id. Identity fields
	// are read from the document itself.
	Put(ctx context.Context, id string, doc document.Value) error

	// Lookup returns the records matching the given identifiers. Either
	// identifier may be empty; both empty is a miss. Returns ErrNotFound
	// when nothing matches.
	Lookup(ctx context.Context, customerNumber, invoiceNumber string) ([]Record, error)

	// AllForCustomer returns every record for a customer, used for
	// period-over-period comparison. An empty slice is a valid result.
	AllForCustomer(ctx context.Context, customerNumber string) ([]Record, error)

	// Health reports whether the backing storage is reachable.
	Health(ctx context.Context) error
}

// identity extracts the lookup keys from a record's document.
func identity(doc document.Value) (customerNumber, invoiceNumber string) {
	process := doc.Get("Data", "ProzessDaten", "ProzessDatenElement")
	customerNumber = process.Get("Geschaeftspartner", "GeschaeftspartnerElement").StringField("customerNumber")
	invoiceNumber = process.StringField("invoiceNumber")
	return customerNumber, invoiceNumber
}
