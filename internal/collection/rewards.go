package collection

import "questboard/internal/models"

// Rewards is the insertion-ordered, reference-unique item reward set of a quest.
type Rewards struct {
	order   []string
	entries map[string]models.RewardEntry
}

// NewRewards builds a reward set from stored entries. Entries without an item reference and
// later duplicates of an already seen reference are dropped.
func NewRewards(entries []models.RewardEntry) *Rewards {
	r := &Rewards{entries: make(map[string]models.RewardEntry, len(entries))}
	for _, entry := range entries {
		if entry.ItemRef == "" {
			continue
		}
		entry.ID = Key(entry.ItemRef)
		if _, ok := r.entries[entry.ID]; ok {
			continue
		}
		r.order = append(r.order, entry.ID)
		r.entries[entry.ID] = entry
	}
	return r
}

// Len returns the number of entries.
func (r *Rewards) Len() int {
	return len(r.order)
}

// Get returns the entry stored under the key of id.
func (r *Rewards) Get(id string) (models.RewardEntry, bool) {
	entry, ok := r.entries[Key(id)]
	return entry, ok
}

// Entries returns the entries in insertion order.
func (r *Rewards) Entries() []models.RewardEntry {
	out := make([]models.RewardEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Add adds an item reference to the reward set and returns the resulting entry.
// An existing entry's quantity grows by the item's natural quantity; a new entry is
// inserted with the natural quantity.
func (r *Rewards) Add(ref string, naturalQuantity int) models.RewardEntry {
	id := Key(ref)
	if existing, ok := r.entries[id]; ok {
		current := naturalQuantity
		if existing.Quantity != nil {
			current = *existing.Quantity
		}
		existing.Quantity = intPtr(current + naturalQuantity)
		r.entries[id] = existing
		return existing
	}

	entry := models.RewardEntry{ID: id, ItemRef: ref, Quantity: intPtr(naturalQuantity)}
	r.order = append(r.order, id)
	r.entries[id] = entry
	return entry
}

// Remove deletes the entry stored under the key of id and reports whether it existed.
func (r *Rewards) Remove(id string) bool {
	id = Key(id)
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	for i, k := range r.order {
		if k == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// QuantityFor returns the quantity an entry grants of its referenced item.
func QuantityFor(entry models.RewardEntry, item models.Item) int {
	if entry.Quantity != nil && *entry.Quantity > 0 {
		return *entry.Quantity
	}
	return item.Quantity
}
