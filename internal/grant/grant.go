// Package grant turns item grant requests into creation and update records for a receiving
// inventory. It has no side effects; persisting the batch is the caller's responsibility.
package grant

import (
	"questboard/internal/models"

	"github.com/google/uuid"
)

// stackable lists the item types that merge into an existing owned stack.
var stackable = map[string]bool{
	models.ItemTypeConsumable: true,
	models.ItemTypeLoot:       true,
}

// Request asks for Quantity of the template Item.
type Request struct {
	Item     models.Item
	Quantity int
}

// Batch holds the items to create and the updates to apply to already owned items.
// The two lists never refer to the same item.
type Batch struct {
	Create []models.Item
	Update []models.ItemUpdate
}

// Empty reports whether the batch grants nothing.
func (b Batch) Empty() bool {
	return len(b.Create) == 0 && len(b.Update) == 0
}

// Batcher builds grant batches.
type Batcher struct {
	// NewID returns identifiers for created items. Defaults to random UUIDs.
	NewID func() string
}

// New returns a Batcher that assigns random UUIDs to created items.
func New() *Batcher {
	return &Batcher{NewID: uuid.NewString}
}

// Batch computes the creation and update records for granting requests to an inventory.
//
// Containers are created once per requested unit, each with a deep copy of its contents.
// Consumables and loot merge into an owned item with the same type, name and source template,
// producing at most one update per owned item. Anything else is created as a fresh copy of
// the template carrying the requested quantity. A quantity below 1 is treated as 1.
func (b *Batcher) Batch(inventory []models.Item, requests []Request) Batch {
	var batch Batch
	updates := make(map[string]int)

	for _, req := range requests {
		quantity := req.Quantity
		if quantity < 1 {
			quantity = 1
		}

		if req.Item.Type == models.ItemTypeContainer {
			for i := 0; i < quantity; i++ {
				batch.Create = append(batch.Create, b.cloneTree(req.Item, "")...)
			}
			continue
		}

		if existing, ok := findStack(inventory, req.Item); ok {
			idx, seen := updates[existing.ID]
			if !seen {
				idx = len(batch.Update)
				updates[existing.ID] = idx
				batch.Update = append(batch.Update, models.ItemUpdate{ID: existing.ID, Quantity: existing.Quantity})
			}
			batch.Update[idx].Quantity += quantity
			batch.Update[idx].Delta += quantity
			continue
		}

		item := b.clone(req.Item)
		item.Quantity = quantity
		batch.Create = append(batch.Create, item)
	}

	return batch
}

func findStack(inventory []models.Item, template models.Item) (models.Item, bool) {
	if !stackable[template.Type] {
		return models.Item{}, false
	}
	for _, owned := range inventory {
		if owned.Type == template.Type && owned.Name == template.Name && owned.SourceRef == template.ID {
			return owned, true
		}
	}
	return models.Item{}, false
}

// clone copies a template into a fresh top-level item without contents.
func (b *Batcher) clone(template models.Item) models.Item {
	item := template
	item.ID = b.newID()
	item.SourceRef = template.ID
	item.ContainerID = ""
	item.Contents = nil
	return item
}

// cloneTree flattens a container and its nested contents into creation records. Each record
// gets a fresh ID and children point at their fresh parent.
func (b *Batcher) cloneTree(template models.Item, parentID string) []models.Item {
	root := b.clone(template)
	root.ContainerID = parentID

	out := []models.Item{root}
	for _, child := range template.Contents {
		out = append(out, b.cloneTree(child, root.ID)...)
	}
	return out
}

func (b *Batcher) newID() string {
	if b.NewID == nil {
		return uuid.NewString()
	}
	return b.NewID()
}
