// Package collection provides the keyed stock and reward collections of shops and quests.
//
// Entries are keyed by a transform of their item reference, so an item reference appears at
// most once per collection. Derived values such as default quantities and prices are computed
// at read time and never written back into the entries.
package collection

import (
	"strings"

	"questboard/internal/models"

	"github.com/shopspring/decimal"
)

// Key returns the collection key of an item reference. Applying Key to a key returns it unchanged.
func Key(ref string) string {
	return strings.ReplaceAll(ref, ".", "-")
}

// Stock is the insertion-ordered stock of a shop.
type Stock struct {
	order   []string
	entries map[string]models.StockEntry
}

// NewStock builds a collection from stored entries. Entries without an item reference or with
// an explicit quantity of zero are dropped; entries sharing an item reference are merged by
// summing explicit quantities.
func NewStock(entries []models.StockEntry) *Stock {
	s := &Stock{entries: make(map[string]models.StockEntry, len(entries))}
	for _, entry := range entries {
		if entry.ItemRef == "" {
			continue
		}
		if entry.Quantity != nil && *entry.Quantity <= 0 {
			continue
		}
		entry.ID = Key(entry.ItemRef)
		if existing, ok := s.entries[entry.ID]; ok {
			if existing.Quantity != nil && entry.Quantity != nil {
				existing.Quantity = intPtr(*existing.Quantity + *entry.Quantity)
			}
			s.entries[entry.ID] = existing
			continue
		}
		s.order = append(s.order, entry.ID)
		s.entries[entry.ID] = entry
	}
	return s
}

// Len returns the number of entries.
func (s *Stock) Len() int {
	return len(s.order)
}

// Get returns the entry stored under the key of id. Both keys and raw item references are accepted.
func (s *Stock) Get(id string) (models.StockEntry, bool) {
	entry, ok := s.entries[Key(id)]
	return entry, ok
}

// Entries returns the entries in insertion order.
func (s *Stock) Entries() []models.StockEntry {
	out := make([]models.StockEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}

// Add adds an item reference to the stock and returns the resulting entry.
//
// When the reference is already stocked, its quantity grows by the item's natural quantity
// (an unset quantity counts as one natural quantity). Otherwise a new entry with an unset
// quantity is inserted, which reads as the natural quantity.
func (s *Stock) Add(ref string, naturalQuantity int) models.StockEntry {
	id := Key(ref)
	if existing, ok := s.entries[id]; ok {
		current := naturalQuantity
		if existing.Quantity != nil {
			current = *existing.Quantity
		}
		existing.Quantity = intPtr(current + naturalQuantity)
		s.entries[id] = existing
		return existing
	}

	entry := models.StockEntry{ID: id, ItemRef: ref}
	s.order = append(s.order, id)
	s.entries[id] = entry
	return entry
}

// Set replaces an entry. Setting an explicit quantity of zero or less removes the entry and
// reports false.
func (s *Stock) Set(entry models.StockEntry) bool {
	entry.ID = Key(entry.ItemRef)
	if entry.Quantity != nil && *entry.Quantity <= 0 {
		s.Remove(entry.ID)
		return false
	}
	if _, ok := s.entries[entry.ID]; !ok {
		s.order = append(s.order, entry.ID)
	}
	s.entries[entry.ID] = entry
	return true
}

// Remove deletes the entry stored under the key of id and reports whether it existed.
func (s *Stock) Remove(id string) bool {
	id = Key(id)
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, k := range s.order {
		if k == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Resolve derives the label, quantity and prices of a stock entry from its referenced item.
//
// The unit price falls back to the item's price, the stack price falls back to the unit price
// times the quantity rounded to the nearest 0.1, and denominations fall back in the same order.
func Resolve(entry models.StockEntry, item models.Item) models.StockListing {
	listing := models.StockListing{
		ID:       Key(entry.ItemRef),
		ItemRef:  entry.ItemRef,
		Label:    entry.Alias,
		Type:     item.Type,
		Quantity: item.Quantity,
	}
	if listing.Label == "" {
		listing.Label = item.Name
	}
	if entry.Quantity != nil {
		listing.Quantity = *entry.Quantity
	}

	listing.Each = models.Cost{Value: item.Price.Value, Denomination: item.Price.Denomination}
	if entry.Price.Each.Value.Valid {
		listing.Each.Value = entry.Price.Each.Value.Decimal
	}
	if entry.Price.Each.Denomination != "" {
		listing.Each.Denomination = entry.Price.Each.Denomination
	}

	listing.Stack = models.Cost{
		Value:        NearestTenth(listing.Each.Value.Mul(decimal.NewFromInt(int64(listing.Quantity)))),
		Denomination: listing.Each.Denomination,
	}
	if entry.Price.Stack.Value.Valid {
		listing.Stack.Value = entry.Price.Stack.Value.Decimal
	}
	if entry.Price.Stack.Denomination != "" {
		listing.Stack.Denomination = entry.Price.Stack.Denomination
	}

	return listing
}

// NearestTenth rounds a value to the nearest 0.1.
func NearestTenth(value decimal.Decimal) decimal.Decimal {
	return value.Round(1)
}

func intPtr(v int) *int {
	return &v
}
