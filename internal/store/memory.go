package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/0-uddeshya-0/klarbill/internal/document"
)

// MemoryStore keeps records in process memory. Used for tests and for
// one-shot CLI invocations that read a JSON dump instead of a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ InvoiceStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// LoadSeed reads a JSON dump of the form {"record-id": {...document...}}
// and stores every record in it.
func (m *MemoryStore) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	var dump map[string]any
	if err := json.Unmarshal(data, &dump); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}
	for id, raw := range dump {
		if err := m.Put(context.Background(), id, document.FromAny(raw)); err != nil {
			return err
		}
	}
	return nil
}

// Put stores or replaces a record under the given id.
func (m *MemoryStore) Put(_ context.Context, id string, doc document.Value) error {
	customerNumber, invoiceNumber := identity(doc)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = Record{
		ID:             id,
		CustomerNumber: customerNumber,
		InvoiceNumber:  invoiceNumber,
		Doc:            doc,
	}
	return nil
}

// Lookup returns records matching the given identifiers. Either may be
// empty; both empty matches nothing.
func (m *MemoryStore) Lookup(_ context.Context, customerNumber, invoiceNumber string) ([]Record, error) {
	if customerNumber == "" && invoiceNumber == "" {
		return nil, ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []Record
	for _, r := range m.records {
		if customerNumber != "" && r.CustomerNumber != customerNumber {
			continue
		}
		if invoiceNumber != "" && r.InvoiceNumber != invoiceNumber {
			continue
		}
		records = append(records, r)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	sortRecords(records)
	return records, nil
}

// AllForCustomer returns every record for a customer in stable id order.
func (m *MemoryStore) AllForCustomer(_ context.Context, customerNumber string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []Record
	for _, r := range m.records {
		if r.CustomerNumber == customerNumber {
			records = append(records, r)
		}
	}
	sortRecords(records)
	return records, nil
}

// Health always succeeds for the in-memory store.
func (m *MemoryStore) Health(context.Context) error {
	return nil
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
