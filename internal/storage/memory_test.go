package storage

import (
	"context"
	"testing"

	"questboard/internal/models"
	"questboard/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory(logger.Nop())

	require.NoError(t, m.PutShop(ctx, models.Shop{
		Ref:   "JournalEntry.shop",
		Name:  "The Gilded Flagon",
		Stock: []models.StockEntry{{ItemRef: "Item.potion", Quantity: intPtr(5)}},
	}))
	require.NoError(t, m.PutActor(ctx, models.Actor{
		Ref:      "Actor.buyer",
		Name:     "Mira",
		Currency: models.Wallet{"gp": 10},
	}))
	require.NoError(t, m.PutQuest(ctx, models.Quest{Ref: "JournalEntry.quest", Name: "Rats in the Cellar"}))
	return m
}

func TestMemoryPutActorStoresContentsFlat(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(logger.Nop())
	require.NoError(t, m.PutActor(ctx, models.Actor{
		Ref: "Actor.packer", Name: "Wren",
		Items: []models.Item{{
			ID: "pack", Name: "Backpack", Type: models.ItemTypeContainer, Quantity: 1,
			Contents: []models.Item{{Name: "Rope", Type: models.ItemTypeTool, Quantity: 1}},
		}},
	}))

	actor, err := m.Actor(ctx, "Actor.packer")
	require.NoError(t, err)
	require.Len(t, actor.Items, 2)
	assert.Equal(t, "pack", actor.Items[0].ID)
	assert.Empty(t, actor.Items[0].Contents)
	assert.NotEmpty(t, actor.Items[1].ID)
	assert.Equal(t, "pack", actor.Items[1].ContainerID)
}

func TestMemoryApplyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)

	err := m.Apply(ctx,
		models.RemoveStock{ShopRef: "JournalEntry.shop", StockID: "Item-potion"},
		models.AdjustCurrency{ActorRef: "Actor.buyer", Delta: models.Wallet{"gp": -50}},
	)
	assert.ErrorIs(t, err, ErrNegativeBalance)

	shop, err := m.Shop(ctx, "JournalEntry.shop")
	require.NoError(t, err)
	assert.Len(t, shop.Stock, 1, "the stock removal was rolled back")

	actor, err := m.Actor(ctx, "Actor.buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(10), actor.Currency["gp"])
}

func TestMemoryApply(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)

	err := m.Apply(ctx,
		models.UpsertStock{ShopRef: "JournalEntry.shop", Entry: models.StockEntry{ID: "Item-potion", ItemRef: "Item.potion", Quantity: intPtr(2)}},
		models.AdjustCurrency{ActorRef: "Actor.buyer", Delta: models.Wallet{"gp": -4, "sp": 3}},
		models.GrantItems{ActorRef: "Actor.buyer", Create: []models.Item{{ID: "owned-1", Name: "Potion", Type: models.ItemTypeConsumable, Quantity: 3}}},
		models.UpsertReward{QuestRef: "JournalEntry.quest", Entry: models.RewardEntry{ID: "Item-gem", ItemRef: "Item.gem"}},
		models.SetQuestComplete{QuestRef: "JournalEntry.quest"},
	)
	require.NoError(t, err)

	shop, _ := m.Shop(ctx, "JournalEntry.shop")
	assert.Equal(t, 2, *shop.Stock[0].Quantity)

	actor, _ := m.Actor(ctx, "Actor.buyer")
	assert.Equal(t, models.Wallet{"gp": 6, "sp": 3}, actor.Currency)
	require.Len(t, actor.Items, 1)

	err = m.Apply(ctx, models.GrantItems{ActorRef: "Actor.buyer", Update: []models.ItemUpdate{{ID: "owned-1", Quantity: 7, Delta: 4}}})
	require.NoError(t, err)
	actor, _ = m.Actor(ctx, "Actor.buyer")
	assert.Equal(t, 7, actor.Items[0].Quantity)

	quest, _ := m.Quest(ctx, "JournalEntry.quest")
	assert.True(t, quest.Complete)
	assert.Len(t, quest.Rewards.Items, 1)
}

func TestMemoryMissingDocuments(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)

	_, err := m.Shop(ctx, "JournalEntry.missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = m.Item(ctx, "Item.missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = m.Apply(ctx, models.RemoveStock{ShopRef: "JournalEntry.shop", StockID: "Item-missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	err = m.Apply(ctx, models.GrantItems{ActorRef: "Actor.buyer", Update: []models.ItemUpdate{{ID: "nope", Quantity: 1}}})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)

	shop, _ := m.Shop(ctx, "JournalEntry.shop")
	*shop.Stock[0].Quantity = 99
	actor, _ := m.Actor(ctx, "Actor.buyer")
	actor.Currency["gp"] = 0

	shop, _ = m.Shop(ctx, "JournalEntry.shop")
	assert.Equal(t, 5, *shop.Stock[0].Quantity)
	actor, _ = m.Actor(ctx, "Actor.buyer")
	assert.Equal(t, int64(10), actor.Currency["gp"])
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(logger.Nop())

	user, err := m.CheckUser(ctx, &models.User{Username: "gm", Password: "secret"})
	require.NoError(t, err)
	assert.Zero(t, user.ID)

	user, err = m.CreateUser(ctx, &models.User{Username: "gm", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), user.ID)

	_, err = m.CreateUser(ctx, &models.User{Username: "gm", Password: "other"})
	assert.ErrorIs(t, err, ErrUserExists)

	user, err = m.CheckUser(ctx, &models.User{Username: "gm", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), user.ID)

	_, err = m.CheckUser(ctx, &models.User{Username: "gm", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMemoryEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(logger.Nop())

	events := []models.CalendarEvent{{ID: "e1", Date: models.EventDate{Day: 3, Year: 1}, Duration: 1, Pages: []string{"JournalEntry.a"}}}
	require.NoError(t, m.SaveEvents(ctx, events))
	events[0].Pages[0] = "changed"

	loaded, err := m.LoadEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"JournalEntry.a"}, loaded[0].Pages)
}
