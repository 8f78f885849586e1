package grant

import (
	"fmt"
	"testing"

	"questboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
}

func TestBatchContainersAreNeverStacked(t *testing.T) {
	backpack := models.Item{
		ID:       "Item.backpack",
		Name:     "Backpack",
		Type:     models.ItemTypeContainer,
		Quantity: 1,
		Contents: []models.Item{
			{ID: "Item.rope", Name: "Rope", Type: models.ItemTypeTool, Quantity: 1},
			{
				ID: "Item.pouch", Name: "Pouch", Type: models.ItemTypeContainer, Quantity: 1,
				Contents: []models.Item{{ID: "Item.chalk", Name: "Chalk", Type: models.ItemTypeLoot, Quantity: 2}},
			},
		},
	}
	inventory := []models.Item{{ID: "owned-1", Name: "Backpack", Type: models.ItemTypeContainer, Quantity: 1, SourceRef: "Item.backpack"}}

	b := &Batcher{NewID: sequentialIDs()}
	batch := b.Batch(inventory, []Request{{Item: backpack, Quantity: 3}})

	assert.Empty(t, batch.Update)
	require.Len(t, batch.Create, 12)

	roots := 0
	for _, item := range batch.Create {
		assert.NotEqual(t, 3, item.Quantity)
		if item.Name == "Backpack" {
			roots++
			assert.Empty(t, item.ContainerID)
			assert.Equal(t, "Item.backpack", item.SourceRef)
		}
	}
	assert.Equal(t, 3, roots)

	// Each unit keeps its own tree: backpack, rope, pouch, chalk.
	for i := 0; i < 3; i++ {
		unit := batch.Create[i*4 : i*4+4]
		assert.Equal(t, []string{"Backpack", "Rope", "Pouch", "Chalk"},
			[]string{unit[0].Name, unit[1].Name, unit[2].Name, unit[3].Name})
		assert.Equal(t, unit[0].ID, unit[1].ContainerID)
		assert.Equal(t, unit[0].ID, unit[2].ContainerID)
		assert.Equal(t, unit[2].ID, unit[3].ContainerID)
		assert.Equal(t, 2, unit[3].Quantity)
	}

	assert.Len(t, backpack.Contents, 2, "the template is not modified")
	assert.Equal(t, "Item.backpack", backpack.ID)
}

func TestBatchConsumablesCoalesceIntoOneUpdate(t *testing.T) {
	potion := models.Item{ID: "Item.potion", Name: "Potion of Healing", Type: models.ItemTypeConsumable, Quantity: 1}
	inventory := []models.Item{
		{ID: "owned-potion", Name: "Potion of Healing", Type: models.ItemTypeConsumable, Quantity: 2, SourceRef: "Item.potion"},
	}

	b := &Batcher{NewID: sequentialIDs()}
	batch := b.Batch(inventory, []Request{{Item: potion, Quantity: 3}, {Item: potion, Quantity: 4}})

	assert.Empty(t, batch.Create)
	require.Len(t, batch.Update, 1)
	assert.Equal(t, models.ItemUpdate{ID: "owned-potion", Quantity: 9, Delta: 7}, batch.Update[0])
}

func TestBatch(t *testing.T) {
	potion := models.Item{ID: "Item.potion", Name: "Potion of Healing", Type: models.ItemTypeConsumable, Quantity: 1}
	sword := models.Item{ID: "Item.sword", Name: "Longsword", Type: models.ItemTypeWeapon, Quantity: 1}

	testCases := []struct {
		name        string
		inventory   []models.Item
		requests    []Request
		wantCreate  int
		wantUpdate  int
		wantCreated int
	}{
		{
			name:        "Consumable without a matching stack is created",
			inventory:   nil,
			requests:    []Request{{Item: potion, Quantity: 5}},
			wantCreate:  1,
			wantCreated: 5,
		},
		{
			name: "Same name from another source is not stacked",
			inventory: []models.Item{
				{ID: "owned", Name: "Potion of Healing", Type: models.ItemTypeConsumable, Quantity: 1, SourceRef: "Item.other"},
			},
			requests:    []Request{{Item: potion, Quantity: 2}},
			wantCreate:  1,
			wantCreated: 2,
		},
		{
			name: "Weapons are never stacked",
			inventory: []models.Item{
				{ID: "owned", Name: "Longsword", Type: models.ItemTypeWeapon, Quantity: 1, SourceRef: "Item.sword"},
			},
			requests:    []Request{{Item: sword, Quantity: 2}},
			wantCreate:  1,
			wantCreated: 2,
		},
		{
			name:        "Quantity below one grants one",
			requests:    []Request{{Item: sword, Quantity: 0}},
			wantCreate:  1,
			wantCreated: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := &Batcher{NewID: sequentialIDs()}
			batch := b.Batch(tc.inventory, tc.requests)

			require.Len(t, batch.Create, tc.wantCreate)
			assert.Len(t, batch.Update, tc.wantUpdate)
			assert.Equal(t, tc.wantCreated, batch.Create[0].Quantity)
			assert.Equal(t, "new-1", batch.Create[0].ID)
			assert.Equal(t, tc.requests[0].Item.ID, batch.Create[0].SourceRef)
		})
	}
}

func TestBatchListsAreDisjoint(t *testing.T) {
	potion := models.Item{ID: "Item.potion", Name: "Potion", Type: models.ItemTypeConsumable, Quantity: 1}
	gem := models.Item{ID: "Item.gem", Name: "Gem", Type: models.ItemTypeLoot, Quantity: 1}
	inventory := []models.Item{{ID: "owned-potion", Name: "Potion", Type: models.ItemTypeConsumable, Quantity: 1, SourceRef: "Item.potion"}}

	batch := New().Batch(inventory, []Request{{Item: potion, Quantity: 1}, {Item: gem, Quantity: 2}, {Item: gem, Quantity: 1}})

	ids := map[string]bool{}
	for _, u := range batch.Update {
		ids[u.ID] = true
	}
	for _, c := range batch.Create {
		assert.False(t, ids[c.ID])
		assert.NotEmpty(t, c.ID)
	}
	assert.Len(t, batch.Create, 2)
	assert.False(t, batch.Empty())
}
