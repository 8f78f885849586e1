// Package app provides the core business logic of the quest board.
// It wires the shop engine, the quest reward service and the calendar store to storage,
// answers queries arriving over the RPC boundary and announces completed operations on the
// event bus. Authentication and token generation are delegated to the auth package.
package app

import (
	"context"
	"errors"
	"sync"

	"questboard/internal/calendar"
	"questboard/internal/currency"
	"questboard/internal/eventbus"
	"questboard/internal/models"
	"questboard/internal/pkg/auth"
	"questboard/internal/pkg/logger"
	"questboard/internal/pkg/queue"
	"questboard/internal/quest"
	"questboard/internal/shop"
	"questboard/internal/storage"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// QueryHandlerName is the name the app registers its query dispatcher under.
const QueryHandlerName = "questboard"

// ErrMissingUsernameOrPassword indicates that either the username or password is not provided.
var ErrMissingUsernameOrPassword = errors.New("app: missing username or password")

// Options configures an App.
type Options struct {
	Currency  *currency.Table
	Calendar  *calendar.Definition
	Publisher eventbus.Publisher
	// GMUsers lists the usernames that receive game master tokens.
	GMUsers []string
	// QueueCapacity bounds the number of operations waiting for the admission queue.
	QueueCapacity int
}

// App encapsulates the application logic and dependencies required to process requests.
type App struct {
	db        storage.Storage
	queue     *queue.Queue
	shop      *shop.Engine
	quests    *quest.Service
	calendar  *calendar.Store
	publisher eventbus.Publisher
	registry  *Registry
	gms       map[string]bool
	log       *logger.Logger

	cron    *cron.Cron
	pending sync.WaitGroup
}

// NewApp creates an App and loads the calendar events from db.
func NewApp(ctx context.Context, db storage.Storage, opts Options, log *logger.Logger) (*App, error) {
	if opts.Currency == nil {
		opts.Currency = currency.Default()
	}
	if opts.Calendar == nil {
		opts.Calendar = calendar.Havilon()
	}
	if opts.Publisher == nil {
		opts.Publisher = eventbus.NewLogPublisher(log.Named("events"))
	}

	events, err := calendar.NewStore(ctx, opts.Calendar, db, log.Named("calendar"))
	if err != nil {
		return nil, err
	}

	q := queue.New(log.Named("queue"), opts.QueueCapacity)
	app := &App{
		db:        db,
		queue:     q,
		shop:      shop.NewEngine(db, q, opts.Currency, log.Named("shop")),
		quests:    quest.NewService(db, q, opts.Currency, log.Named("quest")),
		calendar:  events,
		publisher: opts.Publisher,
		registry:  NewRegistry(),
		gms:       make(map[string]bool, len(opts.GMUsers)),
		log:       log,
	}
	for _, name := range opts.GMUsers {
		app.gms[name] = true
	}
	app.registry.Register(QueryHandlerName, app.HandleQuery)
	return app, nil
}

// Registry returns the query handlers served by the app.
func (app *App) Registry() *Registry {
	return app.registry
}

// ProcessAuth handles user authentication by verifying credentials and generating a token.
// If the user does not exist, it is created.
func (app *App) ProcessAuth(ctx context.Context, req models.AuthRequest) (string, error) {
	if req.Username == "" || req.Password == "" {
		return "", ErrMissingUsernameOrPassword
	}

	user := &models.User{
		Username: req.Username,
		Password: req.Password,
	}

	user, err := app.db.CheckUser(ctx, user)
	if err != nil {
		return "", err
	}

	if user.ID == 0 {
		user, err = app.db.CreateUser(ctx, user)
		if err != nil {
			return "", err
		}
	}

	return auth.GenerateToken(user.ID, app.gms[user.Username])
}

// Stock lists the derived stock of a shop.
func (app *App) Stock(ctx context.Context, shopRef string) ([]models.StockListing, error) {
	return app.shop.Stock(ctx, shopRef)
}

// AddStock adds an item to a shop.
func (app *App) AddStock(ctx context.Context, shopRef, itemRef string) (models.StockListing, error) {
	return app.shop.AddStock(ctx, shopRef, itemRef)
}

// EditStock edits a stock entry; a nil listing means the entry was removed.
func (app *App) EditStock(ctx context.Context, shopRef, stockID string, edit models.StockEdit) (*models.StockListing, error) {
	return app.shop.EditStock(ctx, shopRef, stockID, edit)
}

// RemoveStock removes a stock entry.
func (app *App) RemoveStock(ctx context.Context, shopRef, stockID string) error {
	return app.shop.RemoveStock(ctx, shopRef, stockID)
}

// AddReward adds an item to a quest's rewards.
func (app *App) AddReward(ctx context.Context, questRef, itemRef string) (models.RewardEntry, error) {
	return app.quests.AddReward(ctx, questRef, itemRef)
}

// RemoveReward removes an item from a quest's rewards.
func (app *App) RemoveReward(ctx context.Context, questRef, rewardID string) error {
	return app.quests.RemoveReward(ctx, questRef, rewardID)
}

// EventsOn returns the pages of the calendar events active on date.
func (app *App) EventsOn(date models.EventDate) ([]string, error) {
	if err := app.calendar.Definition().ValidDate(date); err != nil {
		return nil, err
	}
	return app.calendar.ActiveOn(date), nil
}

// StoreEvent stores a calendar event.
func (app *App) StoreEvent(ctx context.Context, req models.StoreEventRequest) (models.CalendarEvent, error) {
	return app.calendar.StoreEvents(ctx, req.Pages, models.CalendarEvent{
		Date:     req.Date,
		Duration: req.Duration,
		Repeat:   req.Repeat,
	})
}

// RemoveEventPage removes a page from every calendar event.
func (app *App) RemoveEventPage(ctx context.Context, page string) (int, error) {
	return app.calendar.RemoveEvent(ctx, page)
}

// ClearCalendar removes every calendar event.
func (app *App) ClearCalendar(ctx context.Context) error {
	return app.calendar.Clear(ctx)
}

// SchedulePrune runs PruneStock on the cron schedule spec until Close.
func (app *App) SchedulePrune(spec string) error {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	_, err := c.AddFunc(spec, func() {
		removed, err := app.shop.PruneStock(context.Background())
		if err != nil {
			app.log.Error("stock prune failed", zap.Error(err))
			return
		}
		app.log.Debug("stock prune finished", zap.Int("removed", removed))
	})
	if err != nil {
		return err
	}
	app.cron = c
	c.Start()
	return nil
}

// Close stops the prune schedule, waits for pending event publications and stops the
// admission queue.
func (app *App) Close() {
	if app.cron != nil {
		<-app.cron.Stop().Done()
	}
	app.queue.Close()
	app.pending.Wait()
	if err := app.publisher.Close(); err != nil {
		app.log.Warn("closing event publisher", zap.Error(err))
	}
}

// announce publishes an event in the background. Failures are logged only.
func (app *App) announce(routingKey string, payload any) {
	app.pending.Add(1)
	go func() {
		defer app.pending.Done()
		if err := app.publisher.Publish(context.Background(), routingKey, payload); err != nil {
			app.log.Warn("failed to publish event", zap.String("type", routingKey), zap.Error(err))
		}
	}()
}
