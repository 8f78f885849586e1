// Package storage provides primitives for connecting to and interacting with data storage systems.
// It defines the Storage interface along with a PostgreSQL implementation and an in-memory
// implementation. Both apply batches of typed commands all-or-nothing.
package storage

import (
	"context"
	"errors"

	"questboard/internal/models"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks questboard/internal/storage Storage

var (
	// ErrUnknownCommand is returned by Apply for command types the driver does not handle.
	ErrUnknownCommand = errors.New("storage: unknown command")
	// ErrNegativeBalance is returned by Apply when a currency adjustment would overdraw a wallet.
	ErrNegativeBalance = errors.New("storage: negative balance")
	// ErrUserExists is returned by CreateUser when the username is taken.
	ErrUserExists = errors.New("storage: user already exists")
	// ErrInvalidCredentials is returned by CheckUser when the password does not match.
	ErrInvalidCredentials = errors.New("storage: invalid credentials")
)

// Storage defines the methods required for data storage operations.
type Storage interface {
	// Close closes the underlying connection.
	Close()

	// Authentication methods.
	CheckUser(ctx context.Context, user *models.User) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)

	// Document lookups. Missing records yield models.ErrNotFound.
	Shop(ctx context.Context, ref string) (models.Shop, error)
	Shops(ctx context.Context) ([]models.Shop, error)
	Actor(ctx context.Context, ref string) (models.Actor, error)
	Item(ctx context.Context, ref string) (models.Item, error)
	Quest(ctx context.Context, ref string) (models.Quest, error)

	// Apply runs all commands or none of them.
	Apply(ctx context.Context, cmds ...models.Command) error

	// Calendar event collection.
	LoadEvents(ctx context.Context) ([]models.CalendarEvent, error)
	SaveEvents(ctx context.Context, events []models.CalendarEvent) error
}

// Seeder stores documents directly, bypassing the command pipeline. It is used to load
// worlds and fixtures.
type Seeder interface {
	PutShop(ctx context.Context, shop models.Shop) error
	PutActor(ctx context.Context, actor models.Actor) error
	PutItem(ctx context.Context, item models.Item) error
	PutQuest(ctx context.Context, quest models.Quest) error
}

func cloneItem(item models.Item) models.Item {
	out := item
	if item.Contents != nil {
		out.Contents = make([]models.Item, len(item.Contents))
		for i, child := range item.Contents {
			out.Contents[i] = cloneItem(child)
		}
	}
	return out
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneShop(shop models.Shop) models.Shop {
	out := shop
	out.Stock = make([]models.StockEntry, len(shop.Stock))
	for i, entry := range shop.Stock {
		entry.Quantity = cloneIntPtr(entry.Quantity)
		out.Stock[i] = entry
	}
	return out
}

func cloneActor(actor models.Actor) models.Actor {
	out := actor
	out.Currency = actor.Currency.Clone()
	out.Items = make([]models.Item, len(actor.Items))
	for i, item := range actor.Items {
		out.Items[i] = cloneItem(item)
	}
	return out
}

// flattenOwned turns nested item contents into the flat owned-inventory layout the grant
// batcher produces: every record carries its own ID and children point at their parent.
func flattenOwned(items []models.Item) []models.Item {
	var out []models.Item
	var walk func(item models.Item, parentID string)
	walk = func(item models.Item, parentID string) {
		record := item
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if parentID != "" {
			record.ContainerID = parentID
		}
		record.Contents = nil
		out = append(out, record)
		for _, child := range item.Contents {
			walk(child, record.ID)
		}
	}
	for _, item := range items {
		walk(item, "")
	}
	return out
}

func cloneQuest(quest models.Quest) models.Quest {
	out := quest
	out.Rewards.Currency = quest.Rewards.Currency.Clone()
	out.Rewards.Items = make([]models.RewardEntry, len(quest.Rewards.Items))
	for i, entry := range quest.Rewards.Items {
		entry.Quantity = cloneIntPtr(entry.Quantity)
		out.Rewards.Items[i] = entry
	}
	return out
}

func cloneEvents(events []models.CalendarEvent) []models.CalendarEvent {
	out := make([]models.CalendarEvent, len(events))
	for i, event := range events {
		event.Pages = append([]string(nil), event.Pages...)
		out[i] = event
	}
	return out
}
