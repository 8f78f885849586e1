package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"questboard/internal/eventbus"
	"questboard/internal/models"
	"questboard/internal/quest"
	"questboard/internal/shop"

	"go.uber.org/zap"
)

// ErrUnknownHandler indicates a query addressed to a name nobody registered.
var ErrUnknownHandler = errors.New("app: unknown query handler")

// QueryHandler answers one query. Business failures are reported in the result.
type QueryHandler func(ctx context.Context, query models.Query) models.QueryResult

// Registry maps handler names to query handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]QueryHandler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]QueryHandler)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, handler QueryHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Dispatch runs the handler registered for name.
func (r *Registry) Dispatch(ctx context.Context, name string, query models.Query) (models.QueryResult, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return models.QueryResult{}, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
	return handler(ctx, query), nil
}

// HandleQuery answers a purchase or reward grant query.
func (app *App) HandleQuery(ctx context.Context, query models.Query) models.QueryResult {
	switch query.Type {
	case models.QueryPurchase:
		if query.Purchase == nil {
			return failure(models.CodeInvalidRequest, "missing purchase payload")
		}
		receipt, err := app.shop.Purchase(ctx, *query.Purchase)
		if err != nil {
			return app.failed(query, err)
		}
		app.announce(eventbus.KeyPurchased, receipt)
		return models.QueryResult{Success: true, Data: receipt}

	case models.QueryGrantRewards:
		if query.GrantRewards == nil {
			return failure(models.CodeInvalidRequest, "missing grantRewards payload")
		}
		grant, err := app.quests.GrantRewards(ctx, *query.GrantRewards)
		if err != nil {
			return app.failed(query, err)
		}
		app.announce(eventbus.KeyRewarded, grant)
		return models.QueryResult{Success: true, Data: grant}

	default:
		return failure(models.CodeInvalidRequest, fmt.Sprintf("unknown query type %q", query.Type))
	}
}

func (app *App) failed(query models.Query, err error) models.QueryResult {
	code := FailureCode(err)
	if code == models.CodeInternal {
		app.log.Error("query failed", zap.String("type", query.Type), zap.Error(err))
		return failure(code, "internal error")
	}
	return failure(code, err.Error())
}

// FailureCode maps an operation error to the failure code reported to callers.
func FailureCode(err error) string {
	switch {
	case errors.Is(err, shop.ErrStockNotFound):
		return models.CodeStockNotFound
	case errors.Is(err, shop.ErrQuantityExceeded):
		return models.CodeQuantityExceeded
	case errors.Is(err, shop.ErrInsufficientFunds):
		return models.CodeInsufficientFunds
	case errors.Is(err, shop.ErrActorNotFound), errors.Is(err, quest.ErrActorNotFound):
		return models.CodeActorNotFound
	case errors.Is(err, quest.ErrQuestNotFound):
		return models.CodeQuestNotFound
	case errors.Is(err, quest.ErrNoRewards):
		return models.CodeNoRewards
	case errors.Is(err, shop.ErrInvalidRequest), errors.Is(err, quest.ErrInvalidRequest):
		return models.CodeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.CodeTimeout
	default:
		return models.CodeInternal
	}
}

func failure(code, reason string) models.QueryResult {
	return models.QueryResult{Code: code, Reason: reason}
}
