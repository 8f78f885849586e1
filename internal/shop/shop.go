// Package shop implements the shop purchase pipeline and stock keeping.
//
// Every operation that reads and then mutates stock or wallets runs through a single
// admission queue, so a purchase always validates against the state left by the previous
// one. Validation failures never mutate anything; a validated purchase commits its stock,
// currency and item changes in one Apply call.
package shop

import (
	"context"
	"errors"
	"fmt"

	"questboard/internal/collection"
	"questboard/internal/currency"
	"questboard/internal/grant"
	"questboard/internal/models"
	"questboard/internal/pkg/logger"
	"questboard/internal/pkg/queue"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest indicates a malformed purchase or stock request.
	ErrInvalidRequest = errors.New("shop: invalid request")
	// ErrShopNotFound indicates that the shop does not exist.
	ErrShopNotFound = errors.New("shop: shop not found")
	// ErrStockNotFound indicates that the stock entry does not exist or no longer resolves.
	ErrStockNotFound = errors.New("shop: stock not found")
	// ErrQuantityExceeded indicates a request for more than the entry holds.
	ErrQuantityExceeded = errors.New("shop: quantity exceeded")
	// ErrInsufficientFunds indicates that the buyer cannot afford the cost.
	ErrInsufficientFunds = errors.New("shop: insufficient funds")
	// ErrActorNotFound indicates that the buyer does not exist.
	ErrActorNotFound = errors.New("shop: actor not found")
	// ErrItemNotFound indicates that an item reference does not resolve.
	ErrItemNotFound = errors.New("shop: item not found")
	// ErrItemNotAllowed indicates an item type that cannot be stocked.
	ErrItemNotAllowed = errors.New("shop: item type not allowed")
	// ErrCommitFailed indicates that storing a validated change failed. Nothing was changed.
	ErrCommitFailed = errors.New("shop: commit failed")
)

// Store is the persistence the engine works against.
type Store interface {
	Shop(ctx context.Context, ref string) (models.Shop, error)
	Shops(ctx context.Context) ([]models.Shop, error)
	Actor(ctx context.Context, ref string) (models.Actor, error)
	Item(ctx context.Context, ref string) (models.Item, error)
	Apply(ctx context.Context, cmds ...models.Command) error
}

// Receipt describes a completed purchase.
type Receipt struct {
	ShopRef   string      `json:"shopRef"`
	StockID   string      `json:"stockId"`
	ItemRef   string      `json:"itemRef"`
	ItemName  string      `json:"itemName"`
	BuyerRef  string      `json:"buyerRef"`
	BuyerName string      `json:"buyerName"`
	Quantity  int         `json:"quantity"`
	FullStack bool        `json:"fullStack"`
	Cost      models.Cost `json:"cost"`
}

// Engine runs purchases and stock edits.
type Engine struct {
	store   Store
	queue   *queue.Queue
	table   *currency.Table
	batcher *grant.Batcher
	log     *logger.Logger
}

// NewEngine creates an Engine. The queue must be shared with every other component that
// mutates shop stock or actor inventories.
func NewEngine(store Store, q *queue.Queue, table *currency.Table, log *logger.Logger) *Engine {
	return &Engine{
		store:   store,
		queue:   q,
		table:   table,
		batcher: grant.New(),
		log:     log,
	}
}

// Purchase buys req.Quantity of a stock entry for the buyer.
func (e *Engine) Purchase(ctx context.Context, req models.PurchaseRequest) (Receipt, error) {
	var receipt Receipt
	if req.ShopRef == "" || req.StockID == "" || req.BuyerRef == "" {
		return receipt, fmt.Errorf("%w: shop, stock and buyer are required", ErrInvalidRequest)
	}
	if req.Quantity < 1 {
		return receipt, fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}

	err := e.queue.Do(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = e.purchase(ctx, req)
		return err
	})
	if err != nil {
		e.log.Info("purchase failed",
			zap.String("shop", req.ShopRef),
			zap.String("stock", req.StockID),
			zap.String("buyer", req.BuyerRef),
			zap.Int("quantity", req.Quantity),
			zap.Error(err))
		return Receipt{}, err
	}

	e.log.Info("purchase completed",
		zap.String("shop", receipt.ShopRef),
		zap.String("item", receipt.ItemRef),
		zap.String("buyer", receipt.BuyerRef),
		zap.Int("quantity", receipt.Quantity),
		zap.String("cost", receipt.Cost.Value.String()+" "+receipt.Cost.Denomination))
	return receipt, nil
}

func (e *Engine) purchase(ctx context.Context, req models.PurchaseRequest) (Receipt, error) {
	shop, err := e.store.Shop(ctx, req.ShopRef)
	if errors.Is(err, models.ErrNotFound) {
		return Receipt{}, fmt.Errorf("%w: shop %q", ErrStockNotFound, req.ShopRef)
	}
	if err != nil {
		return Receipt{}, err
	}

	entry, ok := collection.NewStock(shop.Stock).Get(req.StockID)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %q in %s", ErrStockNotFound, req.StockID, shop.Name)
	}
	item, err := e.store.Item(ctx, entry.ItemRef)
	if errors.Is(err, models.ErrNotFound) {
		return Receipt{}, fmt.Errorf("%w: %q no longer exists", ErrStockNotFound, entry.ItemRef)
	}
	if err != nil {
		return Receipt{}, err
	}

	listing := collection.Resolve(entry, item)
	if req.Quantity > listing.Quantity {
		return Receipt{}, fmt.Errorf("%w: %s has only %d %s", ErrQuantityExceeded, shop.Name, listing.Quantity, listing.Label)
	}

	fullStack := req.Quantity == listing.Quantity
	cost := listing.Stack
	if !fullStack {
		cost = models.Cost{
			Value:        collection.NearestTenth(listing.Each.Value.Mul(decimal.NewFromInt(int64(req.Quantity)))),
			Denomination: listing.Each.Denomination,
		}
	}
	if cost.Denomination == "" {
		cost.Denomination = e.table.Standard()
	}
	if !e.table.Has(cost.Denomination) {
		return Receipt{}, fmt.Errorf("%w: unknown denomination %q", ErrInvalidRequest, cost.Denomination)
	}

	buyer, err := e.store.Actor(ctx, req.BuyerRef)
	if errors.Is(err, models.ErrNotFound) {
		return Receipt{}, fmt.Errorf("%w: %q", ErrActorNotFound, req.BuyerRef)
	}
	if err != nil {
		return Receipt{}, err
	}

	balance := decimal.NewFromInt(buyer.Currency[cost.Denomination])
	if balance.LessThan(cost.Value) {
		return Receipt{}, fmt.Errorf("%w: %s cannot afford %s %s", ErrInsufficientFunds,
			buyer.Name, cost.Value.String(), e.table.Label(cost.Denomination))
	}

	wallet, err := e.table.AffordAndDebit(buyer.Currency, cost, cost.Denomination)
	switch {
	case errors.Is(err, currency.ErrInsufficientFunds):
		return Receipt{}, fmt.Errorf("%w: %s cannot afford %s %s", ErrInsufficientFunds,
			buyer.Name, cost.Value.String(), e.table.Label(cost.Denomination))
	case err != nil:
		return Receipt{}, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	var stockCmd models.Command = models.RemoveStock{ShopRef: shop.Ref, StockID: entry.ID}
	if !fullStack {
		remaining := listing.Quantity - req.Quantity
		entry.Quantity = &remaining
		stockCmd = models.UpsertStock{ShopRef: shop.Ref, Entry: entry}
	}

	batch := e.batcher.Batch(buyer.Items, []grant.Request{{Item: item, Quantity: req.Quantity}})

	err = e.store.Apply(ctx,
		stockCmd,
		models.AdjustCurrency{ActorRef: buyer.Ref, Delta: currency.Delta(buyer.Currency, wallet)},
		models.GrantItems{ActorRef: buyer.Ref, Create: batch.Create, Update: batch.Update},
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %s", ErrCommitFailed, err)
	}

	return Receipt{
		ShopRef:   shop.Ref,
		StockID:   entry.ID,
		ItemRef:   entry.ItemRef,
		ItemName:  listing.Label,
		BuyerRef:  buyer.Ref,
		BuyerName: buyer.Name,
		Quantity:  req.Quantity,
		FullStack: fullStack,
		Cost:      cost,
	}, nil
}
