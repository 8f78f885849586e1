package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"questboard/internal/calendar"
	"questboard/internal/eventbus"
	"questboard/internal/models"
	"questboard/internal/pkg/auth"
	"questboard/internal/pkg/logger"
	"questboard/internal/quest"
	"questboard/internal/shop"
	"questboard/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key     string
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (r *recorder) Publish(ctx context.Context, routingKey string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{key: routingKey, payload: payload})
	return r.err
}

func (r *recorder) Close() error { return nil }

func intPtr(v int) *int { return &v }

func newApp(t *testing.T, pub eventbus.Publisher) (*App, *storage.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := storage.NewMemory(logger.Nop())

	require.NoError(t, mem.PutItem(ctx, models.Item{ID: "Item.potion", Name: "Potion of Healing", Type: models.ItemTypeConsumable, Quantity: 1,
		Price: models.Cost{Value: decimal.NewFromInt(5), Denomination: "gp"}}))
	require.NoError(t, mem.PutShop(ctx, models.Shop{Ref: "JournalEntry.shop", Name: "The Gilded Flagon",
		Stock: []models.StockEntry{{ItemRef: "Item.potion", Quantity: intPtr(2)}}}))
	require.NoError(t, mem.PutActor(ctx, models.Actor{Ref: "Actor.mira", Name: "Mira", Currency: models.Wallet{"gp": 6}}))
	require.NoError(t, mem.PutQuest(ctx, models.Quest{Ref: "JournalEntry.quest", Name: "Rats in the Cellar",
		Rewards: models.Rewards{Currency: models.Wallet{"gp": 10}}}))

	app, err := NewApp(ctx, mem, Options{Publisher: pub, GMUsers: []string{"dm"}, QueueCapacity: 8}, logger.Nop())
	require.NoError(t, err)
	return app, mem
}

func TestHandleQuery(t *testing.T) {
	testCases := []struct {
		name     string
		query    models.Query
		wantCode string
		wantKey  string
	}{
		{
			name: "Purchase",
			query: models.Query{Type: models.QueryPurchase, Purchase: &models.PurchaseRequest{
				ShopRef: "JournalEntry.shop", StockID: "Item-potion", BuyerRef: "Actor.mira", Quantity: 1,
			}},
			wantKey: eventbus.KeyPurchased,
		},
		{
			name: "Purchase beyond funds",
			query: models.Query{Type: models.QueryPurchase, Purchase: &models.PurchaseRequest{
				ShopRef: "JournalEntry.shop", StockID: "Item-potion", BuyerRef: "Actor.mira", Quantity: 2,
			}},
			wantCode: models.CodeInsufficientFunds,
		},
		{
			name: "Purchase of missing stock",
			query: models.Query{Type: models.QueryPurchase, Purchase: &models.PurchaseRequest{
				ShopRef: "JournalEntry.shop", StockID: "Item-sword", BuyerRef: "Actor.mira", Quantity: 1,
			}},
			wantCode: models.CodeStockNotFound,
		},
		{
			name: "Too many",
			query: models.Query{Type: models.QueryPurchase, Purchase: &models.PurchaseRequest{
				ShopRef: "JournalEntry.shop", StockID: "Item-potion", BuyerRef: "Actor.mira", Quantity: 3,
			}},
			wantCode: models.CodeQuantityExceeded,
		},
		{
			name:     "Missing payload",
			query:    models.Query{Type: models.QueryPurchase},
			wantCode: models.CodeInvalidRequest,
		},
		{
			name: "Grant rewards",
			query: models.Query{Type: models.QueryGrantRewards, GrantRewards: &models.GrantRewardsRequest{
				QuestRef: "JournalEntry.quest", ActorRef: "Actor.mira", Complete: true,
			}},
			wantKey: eventbus.KeyRewarded,
		},
		{
			name: "Grant rewards of unknown quest",
			query: models.Query{Type: models.QueryGrantRewards, GrantRewards: &models.GrantRewardsRequest{
				QuestRef: "JournalEntry.none", ActorRef: "Actor.mira",
			}},
			wantCode: models.CodeQuestNotFound,
		},
		{
			name:     "Unknown type",
			query:    models.Query{Type: "sell"},
			wantCode: models.CodeInvalidRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			app, _ := newApp(t, rec)

			result, err := app.Registry().Dispatch(context.Background(), QueryHandlerName, tc.query)
			require.NoError(t, err)
			app.Close()

			if tc.wantCode != "" {
				assert.False(t, result.Success)
				assert.Equal(t, tc.wantCode, result.Code)
				assert.NotEmpty(t, result.Reason)
				assert.Empty(t, rec.events)
				return
			}
			assert.True(t, result.Success, result.Reason)
			assert.NotNil(t, result.Data)
			require.Len(t, rec.events, 1)
			assert.Equal(t, tc.wantKey, rec.events[0].key)
		})
	}
}

func TestPublishFailureDoesNotFailQuery(t *testing.T) {
	app, mem := newApp(t, &recorder{err: errors.New("broker down")})

	result := app.HandleQuery(context.Background(), models.Query{Type: models.QueryPurchase, Purchase: &models.PurchaseRequest{
		ShopRef: "JournalEntry.shop", StockID: "Item-potion", BuyerRef: "Actor.mira", Quantity: 1,
	}})
	app.Close()

	assert.True(t, result.Success)
	actor, err := mem.Actor(context.Background(), "Actor.mira")
	require.NoError(t, err)
	assert.Equal(t, int64(1), actor.Currency["gp"])
}

func TestDispatchUnknownHandler(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), "nobody", models.Query{})
	assert.ErrorIs(t, err, ErrUnknownHandler)

	r.Register("echo", func(ctx context.Context, q models.Query) models.QueryResult {
		return models.QueryResult{Success: true, Reason: q.Type}
	})
	result, err := r.Dispatch(context.Background(), "echo", models.Query{Type: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", result.Reason)
}

func TestFailureCode(t *testing.T) {
	testCases := []struct {
		err  error
		code string
	}{
		{err: shop.ErrStockNotFound, code: models.CodeStockNotFound},
		{err: shop.ErrQuantityExceeded, code: models.CodeQuantityExceeded},
		{err: shop.ErrInsufficientFunds, code: models.CodeInsufficientFunds},
		{err: shop.ErrActorNotFound, code: models.CodeActorNotFound},
		{err: quest.ErrActorNotFound, code: models.CodeActorNotFound},
		{err: quest.ErrNoRewards, code: models.CodeNoRewards},
		{err: quest.ErrInvalidRequest, code: models.CodeInvalidRequest},
		{err: context.DeadlineExceeded, code: models.CodeTimeout},
		{err: shop.ErrCommitFailed, code: models.CodeInternal},
		{err: errors.New("boom"), code: models.CodeInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.code, FailureCode(tc.err))
		})
	}
}

func TestProcessAuth(t *testing.T) {
	app, _ := newApp(t, nil)
	t.Cleanup(app.Close)
	ctx := context.Background()

	_, err := app.ProcessAuth(ctx, models.AuthRequest{Username: "dm"})
	assert.ErrorIs(t, err, ErrMissingUsernameOrPassword)

	token, err := app.ProcessAuth(ctx, models.AuthRequest{Username: "dm", Password: "secret"})
	require.NoError(t, err)
	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsGM)

	token, err = app.ProcessAuth(ctx, models.AuthRequest{Username: "player", Password: "secret"})
	require.NoError(t, err)
	claims, err = auth.ParseToken(token)
	require.NoError(t, err)
	assert.False(t, claims.IsGM)

	_, err = app.ProcessAuth(ctx, models.AuthRequest{Username: "player", Password: "wrong"})
	assert.ErrorIs(t, err, storage.ErrInvalidCredentials)
}

func TestCalendarOperations(t *testing.T) {
	app, _ := newApp(t, nil)
	t.Cleanup(app.Close)
	ctx := context.Background()

	event, err := app.StoreEvent(ctx, models.StoreEventRequest{Pages: []string{"Page.feast"}, Date: models.EventDate{Day: 100, Year: 3}, Duration: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)

	pages, err := app.EventsOn(models.EventDate{Day: 101, Year: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"Page.feast"}, pages)

	_, err = app.EventsOn(models.EventDate{Day: 400, Year: 3})
	assert.ErrorIs(t, err, calendar.ErrInvalidDate)

	removed, err := app.RemoveEventPage(ctx, "Page.feast")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, app.ClearCalendar(ctx))
}

func TestSchedulePrune(t *testing.T) {
	app, _ := newApp(t, nil)
	t.Cleanup(app.Close)

	assert.Error(t, app.SchedulePrune("every now and then"))
	assert.NoError(t, app.SchedulePrune("@every 1h"))
}
