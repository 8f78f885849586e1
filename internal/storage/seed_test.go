package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"questboard/internal/models"
	"questboard/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureJSON = `{
  "items": [
    {"id": "Item.potion", "name": "Potion of Healing", "type": "consumable", "quantity": 1,
     "price": {"value": "50", "denomination": "gp"}}
  ],
  "shops": [
    {"ref": "JournalEntry.shop", "name": "The Gilded Flagon",
     "stock": [{"itemRef": "Item.potion", "quantity": 4}]}
  ],
  "actors": [
    {"ref": "Actor.mira", "name": "Mira", "currency": {"gp": 120, "sp": 3}}
  ],
  "quests": [
    {"ref": "JournalEntry.quest", "name": "Rats in the Cellar", "type": "side",
     "rewards": {"items": [{"itemRef": "Item.potion"}], "currency": {"gp": 10}}}
  ]
}`

func TestSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtureJSON), 0o600))

	fixture, err := ReadFixture(path)
	require.NoError(t, err)

	ctx := context.Background()
	mem := NewMemory(logger.Nop())
	require.NoError(t, Seed(ctx, mem, fixture))

	item, err := mem.Item(ctx, "Item.potion")
	require.NoError(t, err)
	assert.Equal(t, "50", item.Price.Value.String())

	shop, err := mem.Shop(ctx, "JournalEntry.shop")
	require.NoError(t, err)
	require.Len(t, shop.Stock, 1)
	assert.Equal(t, 4, *shop.Stock[0].Quantity)

	actor, err := mem.Actor(ctx, "Actor.mira")
	require.NoError(t, err)
	assert.Equal(t, models.Wallet{"gp": 120, "sp": 3}, actor.Currency)

	quest, err := mem.Quest(ctx, "JournalEntry.quest")
	require.NoError(t, err)
	assert.Equal(t, models.QuestTypeSide, quest.Type)
	assert.Len(t, quest.Rewards.Items, 1)
}

func TestReadFixture_Errors(t *testing.T) {
	_, err := ReadFixture(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = ReadFixture(path)
	assert.Error(t, err)
}
