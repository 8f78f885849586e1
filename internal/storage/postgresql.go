package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"questboard/internal/collection"
	"questboard/internal/models"
	"questboard/internal/pkg/logger"
	"questboard/internal/pkg/security"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schema string

const (
	createUserQuery = `INSERT INTO content.users (username, password_hash) VALUES ($1, $2) RETURNING id;`
	checkUserQuery  = `SELECT id, password_hash FROM content.users WHERE username = $1;`

	getShopQuery   = `SELECT ref, name, owner_ref FROM content.shops WHERE ref = $1;`
	getShopsQuery  = `SELECT ref, name, owner_ref FROM content.shops ORDER BY ref;`
	getStockQuery  = `SELECT id, item_ref, alias, each_value, each_denomination, stack_value, stack_denomination, quantity FROM content.stock WHERE shop_ref = $1 ORDER BY position;`
	upsertShop     = `INSERT INTO content.shops (ref, name, owner_ref) VALUES ($1, $2, $3) ON CONFLICT (ref) DO UPDATE SET name = EXCLUDED.name, owner_ref = EXCLUDED.owner_ref;`
	clearStock     = `DELETE FROM content.stock WHERE shop_ref = $1;`
	upsertStock    = `INSERT INTO content.stock (shop_ref, id, item_ref, alias, each_value, each_denomination, stack_value, stack_denomination, quantity) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (shop_ref, id) DO UPDATE SET item_ref = EXCLUDED.item_ref, alias = EXCLUDED.alias, each_value = EXCLUDED.each_value, each_denomination = EXCLUDED.each_denomination, stack_value = EXCLUDED.stack_value, stack_denomination = EXCLUDED.stack_denomination, quantity = EXCLUDED.quantity;`
	deleteStock    = `DELETE FROM content.stock WHERE shop_ref = $1 AND id = $2;`
	getActorQuery  = `SELECT ref, name FROM content.actors WHERE ref = $1;`
	getWalletQuery = `SELECT denomination, amount FROM content.wallets WHERE actor_ref = $1;`
	upsertActor    = `INSERT INTO content.actors (ref, name) VALUES ($1, $2) ON CONFLICT (ref) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW();`
	clearWallet    = `DELETE FROM content.wallets WHERE actor_ref = $1;`
	clearOwned     = `DELETE FROM content.items WHERE actor_ref = $1;`
	adjustWallet   = `INSERT INTO content.wallets (actor_ref, denomination, amount) VALUES ($1, $2, $3) ON CONFLICT (actor_ref, denomination) DO UPDATE SET amount = content.wallets.amount + EXCLUDED.amount;`
	touchActor     = `UPDATE content.actors SET updated_at = NOW() WHERE ref = $1;`

	itemColumns     = `ref, container_ref, name, type, quantity, price_value, price_denomination, source_ref`
	getItemQuery    = `SELECT ` + itemColumns + ` FROM content.items WHERE ref = $1 AND actor_ref IS NULL;`
	getContents     = `SELECT ` + itemColumns + ` FROM content.items WHERE container_ref = $1 AND actor_ref IS NULL ORDER BY position;`
	getOwnedQuery   = `SELECT ` + itemColumns + ` FROM content.items WHERE actor_ref = $1 ORDER BY position;`
	insertItem      = `INSERT INTO content.items (ref, actor_ref, container_ref, name, type, quantity, price_value, price_denomination, source_ref) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`
	upsertTemplate  = `INSERT INTO content.items (ref, actor_ref, container_ref, name, type, quantity, price_value, price_denomination, source_ref) VALUES ($1, NULL, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (ref) DO UPDATE SET container_ref = EXCLUDED.container_ref, name = EXCLUDED.name, type = EXCLUDED.type, quantity = EXCLUDED.quantity, price_value = EXCLUDED.price_value, price_denomination = EXCLUDED.price_denomination, source_ref = EXCLUDED.source_ref;`
	updateItemQty   = `UPDATE content.items SET quantity = $1 WHERE ref = $2 AND actor_ref = $3;`
	getQuestQuery   = `SELECT ref, name, type, complete FROM content.quests WHERE ref = $1;`
	getRewardsQuery = `SELECT id, item_ref, quantity FROM content.quest_rewards WHERE quest_ref = $1 ORDER BY position;`
	getQuestCoins   = `SELECT denomination, amount FROM content.quest_currency WHERE quest_ref = $1;`
	upsertQuest     = `INSERT INTO content.quests (ref, name, type, complete) VALUES ($1, $2, $3, $4) ON CONFLICT (ref) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type, complete = EXCLUDED.complete;`
	clearRewards    = `DELETE FROM content.quest_rewards WHERE quest_ref = $1;`
	clearQuestCoins = `DELETE FROM content.quest_currency WHERE quest_ref = $1;`
	insertQuestCoin = `INSERT INTO content.quest_currency (quest_ref, denomination, amount) VALUES ($1, $2, $3);`
	upsertReward    = `INSERT INTO content.quest_rewards (quest_ref, id, item_ref, quantity) VALUES ($1, $2, $3, $4) ON CONFLICT (quest_ref, id) DO UPDATE SET item_ref = EXCLUDED.item_ref, quantity = EXCLUDED.quantity;`
	deleteReward    = `DELETE FROM content.quest_rewards WHERE quest_ref = $1 AND id = $2;`
	completeQuest   = `UPDATE content.quests SET complete = TRUE WHERE ref = $1;`
	getEventsQuery  = `SELECT id, day, year, duration, repeat, pages FROM content.calendar_events ORDER BY position;`
	clearEvents     = `DELETE FROM content.calendar_events;`
	insertEvent     = `INSERT INTO content.calendar_events (id, day, year, duration, repeat, pages) VALUES ($1, $2, $3, $4, $5, $6);`
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgreSQL implements the Storage interface using a PostgreSQL database.
type PostgreSQL struct {
	db  *sql.DB        // Connection to the database.
	log *logger.Logger // Logger for recording events and errors.
}

// NewPostgreSQL creates a new PostgreSQL instance with the provided connection string and logger.
// It opens the connection and pings the database to ensure connectivity.
func NewPostgreSQL(configDBString string, l *logger.Logger) (*PostgreSQL, error) {
	db, err := sql.Open("pgx", configDBString)
	if err != nil {
		l.Sugar().Errorf("Failed to open a database: %s", err)
		return &PostgreSQL{db: db, log: l}, err
	}

	const defaultTimeout = 10 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		l.Sugar().Errorf("Database ping failed: %s", err)
		return &PostgreSQL{db: db, log: l}, err
	}

	return &PostgreSQL{db: db, log: l}, nil
}

// Migrate creates the schema if it does not exist yet.
func (postgresql *PostgreSQL) Migrate(ctx context.Context) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			postgresql.log.Sugar().Errorf("Failed to apply schema statement: %s", err)
			return err
		}
	}

	return tx.Commit()
}

// Close closes the database connection if it is open.
func (postgresql *PostgreSQL) Close() {
	if postgresql.db != nil {
		postgresql.db.Close()
	}
}

// CheckUser verifies the user's credentials by retrieving the user's ID and encrypted password,
// then checking the provided password against the stored hash.
func (postgresql *PostgreSQL) CheckUser(ctx context.Context, user *models.User) (*models.User, error) {
	var encryptedPassword string

	err := postgresql.db.QueryRowContext(ctx, checkUserQuery, user.Username).Scan(&user.ID, &encryptedPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return user, nil
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query checkUserQuery: %s", err)
		return user, err
	}

	err = security.CheckPassword(encryptedPassword, user.Password)
	if err != nil {
		postgresql.log.Sugar().Infof("Rejected credentials of %s: %s", user.Username, err)
		return user, fmt.Errorf("%w: %s", ErrInvalidCredentials, err)
	}

	return user, nil
}

// CreateUser registers a new user by hashing the password and inserting the user into the database.
func (postgresql *PostgreSQL) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	encryptedPassword, err := security.HashPassword(user.Password)
	if err != nil {
		return user, err
	}

	err = postgresql.db.QueryRowContext(ctx, createUserQuery, user.Username, encryptedPassword).Scan(&user.ID)
	if pgCode(err) == pgerrcode.UniqueViolation {
		return user, ErrUserExists
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query createUserQuery: %s", err)
		return user, err
	}
	return user, nil
}

// Shop retrieves a shop with its stock in insertion order.
func (postgresql *PostgreSQL) Shop(ctx context.Context, ref string) (models.Shop, error) {
	shop := models.Shop{}
	err := postgresql.db.QueryRowContext(ctx, getShopQuery, ref).Scan(&shop.Ref, &shop.Name, &shop.OwnerRef)
	if errors.Is(err, sql.ErrNoRows) {
		return shop, fmt.Errorf("%w: shop %q", models.ErrNotFound, ref)
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getShopQuery: %s", err)
		return shop, err
	}

	shop.Stock, err = postgresql.stock(ctx, postgresql.db, ref)
	return shop, err
}

// Shops retrieves all shops with their stock.
func (postgresql *PostgreSQL) Shops(ctx context.Context) ([]models.Shop, error) {
	rows, err := postgresql.db.QueryContext(ctx, getShopsQuery)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getShopsQuery: %s", err)
		return nil, err
	}
	defer rows.Close()

	var shops []models.Shop
	for rows.Next() {
		shop := models.Shop{}
		if err := rows.Scan(&shop.Ref, &shop.Name, &shop.OwnerRef); err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan shop in Shops method: %s", err)
			return nil, err
		}
		shops = append(shops, shop)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range shops {
		if shops[i].Stock, err = postgresql.stock(ctx, postgresql.db, shops[i].Ref); err != nil {
			return nil, err
		}
	}
	return shops, nil
}

func (postgresql *PostgreSQL) stock(ctx context.Context, q queryer, shopRef string) ([]models.StockEntry, error) {
	rows, err := q.QueryContext(ctx, getStockQuery, shopRef)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getStockQuery: %s", err)
		return nil, err
	}
	defer rows.Close()

	const initialStockCapacity = 10
	stock := make([]models.StockEntry, 0, initialStockCapacity)
	for rows.Next() {
		entry := models.StockEntry{}
		var quantity sql.NullInt64
		err := rows.Scan(&entry.ID, &entry.ItemRef, &entry.Alias,
			&entry.Price.Each.Value, &entry.Price.Each.Denomination,
			&entry.Price.Stack.Value, &entry.Price.Stack.Denomination, &quantity)
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan stock entry in stock method: %s", err)
			return nil, err
		}
		entry.Quantity = nullableInt(quantity)
		stock = append(stock, entry)
	}

	return stock, rows.Err()
}

// Actor retrieves an actor with its wallet and owned items.
func (postgresql *PostgreSQL) Actor(ctx context.Context, ref string) (models.Actor, error) {
	actor := models.Actor{Currency: make(models.Wallet)}
	err := postgresql.db.QueryRowContext(ctx, getActorQuery, ref).Scan(&actor.Ref, &actor.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return actor, fmt.Errorf("%w: actor %q", models.ErrNotFound, ref)
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getActorQuery: %s", err)
		return actor, err
	}

	if actor.Currency, err = postgresql.wallet(ctx, getWalletQuery, ref); err != nil {
		return actor, err
	}
	actor.Items, err = postgresql.items(ctx, postgresql.db, getOwnedQuery, ref)
	return actor, err
}

func (postgresql *PostgreSQL) wallet(ctx context.Context, query, ref string) (models.Wallet, error) {
	rows, err := postgresql.db.QueryContext(ctx, query, ref)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a wallet query: %s", err)
		return nil, err
	}
	defer rows.Close()

	wallet := make(models.Wallet)
	for rows.Next() {
		var (
			key    string
			amount int64
		)
		if err := rows.Scan(&key, &amount); err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan wallet row: %s", err)
			return nil, err
		}
		wallet[key] = amount
	}
	return wallet, rows.Err()
}

func (postgresql *PostgreSQL) items(ctx context.Context, q queryer, query, ref string) ([]models.Item, error) {
	rows, err := q.QueryContext(ctx, query, ref)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute an item query: %s", err)
		return nil, err
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan item row: %s", err)
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Item retrieves an item template with its nested contents.
func (postgresql *PostgreSQL) Item(ctx context.Context, ref string) (models.Item, error) {
	item, err := scanItem(postgresql.db.QueryRowContext(ctx, getItemQuery, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return item, fmt.Errorf("%w: item %q", models.ErrNotFound, ref)
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getItemQuery: %s", err)
		return item, err
	}

	err = postgresql.contents(ctx, &item)
	return item, err
}

func (postgresql *PostgreSQL) contents(ctx context.Context, parent *models.Item) error {
	children, err := postgresql.items(ctx, postgresql.db, getContents, parent.ID)
	if err != nil {
		return err
	}
	for i := range children {
		if err := postgresql.contents(ctx, &children[i]); err != nil {
			return err
		}
	}
	parent.Contents = children
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (models.Item, error) {
	item := models.Item{}
	err := row.Scan(&item.ID, &item.ContainerID, &item.Name, &item.Type, &item.Quantity,
		&item.Price.Value, &item.Price.Denomination, &item.SourceRef)
	return item, err
}

// Quest retrieves a quest with its item and currency rewards.
func (postgresql *PostgreSQL) Quest(ctx context.Context, ref string) (models.Quest, error) {
	quest := models.Quest{}
	err := postgresql.db.QueryRowContext(ctx, getQuestQuery, ref).Scan(&quest.Ref, &quest.Name, &quest.Type, &quest.Complete)
	if errors.Is(err, sql.ErrNoRows) {
		return quest, fmt.Errorf("%w: quest %q", models.ErrNotFound, ref)
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getQuestQuery: %s", err)
		return quest, err
	}

	rows, err := postgresql.db.QueryContext(ctx, getRewardsQuery, ref)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getRewardsQuery: %s", err)
		return quest, err
	}
	defer rows.Close()

	for rows.Next() {
		entry := models.RewardEntry{}
		var quantity sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.ItemRef, &quantity); err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan reward in Quest method: %s", err)
			return quest, err
		}
		entry.Quantity = nullableInt(quantity)
		quest.Rewards.Items = append(quest.Rewards.Items, entry)
	}
	if err := rows.Err(); err != nil {
		return quest, err
	}

	quest.Rewards.Currency, err = postgresql.wallet(ctx, getQuestCoins, ref)
	return quest, err
}

// Apply executes all commands inside a single transaction.
func (postgresql *PostgreSQL) Apply(ctx context.Context, cmds ...models.Command) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, cmd := range cmds {
		if err := postgresql.apply(ctx, tx, cmd); err != nil {
			postgresql.log.Sugar().Errorf("Failed to apply command %s: %s", models.CommandName(cmd), err)
			return classify(err)
		}
	}

	return tx.Commit()
}

func (postgresql *PostgreSQL) apply(ctx context.Context, tx *sql.Tx, cmd models.Command) error {
	switch c := cmd.(type) {
	case models.UpsertStock:
		e := c.Entry
		_, err := tx.ExecContext(ctx, upsertStock, c.ShopRef, e.ID, e.ItemRef, e.Alias,
			e.Price.Each.Value, e.Price.Each.Denomination,
			e.Price.Stack.Value, e.Price.Stack.Denomination, nullInt(e.Quantity))
		return err

	case models.RemoveStock:
		return execOne(ctx, tx, fmt.Sprintf("stock %q in shop %q", c.StockID, c.ShopRef), deleteStock, c.ShopRef, c.StockID)

	case models.AdjustCurrency:
		if err := execOne(ctx, tx, fmt.Sprintf("actor %q", c.ActorRef), touchActor, c.ActorRef); err != nil {
			return err
		}
		for key, delta := range c.Delta {
			if _, err := tx.ExecContext(ctx, adjustWallet, c.ActorRef, key, delta); err != nil {
				return err
			}
		}
		return nil

	case models.GrantItems:
		for _, update := range c.Update {
			err := execOne(ctx, tx, fmt.Sprintf("item %q on actor %q", update.ID, c.ActorRef),
				updateItemQty, update.Quantity, update.ID, c.ActorRef)
			if err != nil {
				return err
			}
		}
		for _, item := range c.Create {
			_, err := tx.ExecContext(ctx, insertItem, item.ID, c.ActorRef, item.ContainerID, item.Name, item.Type,
				item.Quantity, item.Price.Value, item.Price.Denomination, item.SourceRef)
			if err != nil {
				return err
			}
		}
		return nil

	case models.UpsertReward:
		_, err := tx.ExecContext(ctx, upsertReward, c.QuestRef, c.Entry.ID, c.Entry.ItemRef, nullInt(c.Entry.Quantity))
		return err

	case models.RemoveReward:
		return execOne(ctx, tx, fmt.Sprintf("reward %q in quest %q", c.RewardID, c.QuestRef), deleteReward, c.QuestRef, c.RewardID)

	case models.SetQuestComplete:
		return execOne(ctx, tx, fmt.Sprintf("quest %q", c.QuestRef), completeQuest, c.QuestRef)

	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

// execOne runs a statement that must affect at least one row.
func execOne(ctx context.Context, tx *sql.Tx, what, query string, args ...any) error {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}
	return nil
}

// LoadEvents retrieves the calendar events in insertion order.
func (postgresql *PostgreSQL) LoadEvents(ctx context.Context) ([]models.CalendarEvent, error) {
	rows, err := postgresql.db.QueryContext(ctx, getEventsQuery)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getEventsQuery: %s", err)
		return nil, err
	}
	defer rows.Close()

	var events []models.CalendarEvent
	for rows.Next() {
		event := models.CalendarEvent{}
		var pages []byte
		err := rows.Scan(&event.ID, &event.Date.Day, &event.Date.Year, &event.Duration, &event.Repeat, &pages)
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan calendar event: %s", err)
			return nil, err
		}
		if err := json.Unmarshal(pages, &event.Pages); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveEvents replaces the stored calendar events.
func (postgresql *PostgreSQL) SaveEvents(ctx context.Context, events []models.CalendarEvent) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, clearEvents); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query clearEvents: %s", err)
		return err
	}
	for _, event := range events {
		pages, err := json.Marshal(event.Pages)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, insertEvent, event.ID, event.Date.Day, event.Date.Year, event.Duration, event.Repeat, pages)
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to execute a query insertEvent: %s", err)
			return err
		}
	}

	return tx.Commit()
}

// PutShop stores a shop and replaces its stock.
func (postgresql *PostgreSQL) PutShop(ctx context.Context, shop models.Shop) error {
	return postgresql.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertShop, shop.Ref, shop.Name, shop.OwnerRef); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, clearStock, shop.Ref); err != nil {
			return err
		}
		for _, entry := range shop.Stock {
			entry.ID = collection.Key(entry.ItemRef)
			if err := postgresql.apply(ctx, tx, models.UpsertStock{ShopRef: shop.Ref, Entry: entry}); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutActor stores an actor and replaces its wallet and owned items. Nested item contents
// are stored flat, children pointing at their container.
func (postgresql *PostgreSQL) PutActor(ctx context.Context, actor models.Actor) error {
	return postgresql.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertActor, actor.Ref, actor.Name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, clearWallet, actor.Ref); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, clearOwned, actor.Ref); err != nil {
			return err
		}
		if err := postgresql.apply(ctx, tx, models.AdjustCurrency{ActorRef: actor.Ref, Delta: actor.Currency}); err != nil {
			return err
		}
		return postgresql.apply(ctx, tx, models.GrantItems{ActorRef: actor.Ref, Create: flattenOwned(actor.Items)})
	})
}

// PutItem stores an item template and its nested contents.
func (postgresql *PostgreSQL) PutItem(ctx context.Context, item models.Item) error {
	return postgresql.inTx(ctx, func(tx *sql.Tx) error {
		return putTemplate(ctx, tx, item, item.ContainerID)
	})
}

func putTemplate(ctx context.Context, tx *sql.Tx, item models.Item, containerRef string) error {
	_, err := tx.ExecContext(ctx, upsertTemplate, item.ID, containerRef, item.Name, item.Type,
		item.Quantity, item.Price.Value, item.Price.Denomination, item.SourceRef)
	if err != nil {
		return err
	}
	for _, child := range item.Contents {
		if err := putTemplate(ctx, tx, child, item.ID); err != nil {
			return err
		}
	}
	return nil
}

// PutQuest stores a quest and replaces its rewards.
func (postgresql *PostgreSQL) PutQuest(ctx context.Context, quest models.Quest) error {
	return postgresql.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertQuest, quest.Ref, quest.Name, quest.Type, quest.Complete); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, clearRewards, quest.Ref); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, clearQuestCoins, quest.Ref); err != nil {
			return err
		}
		for _, entry := range quest.Rewards.Items {
			entry.ID = collection.Key(entry.ItemRef)
			if err := postgresql.apply(ctx, tx, models.UpsertReward{QuestRef: quest.Ref, Entry: entry}); err != nil {
				return err
			}
		}
		for key, amount := range quest.Rewards.Currency {
			if _, err := tx.ExecContext(ctx, insertQuestCoin, quest.Ref, key, amount); err != nil {
				return err
			}
		}
		return nil
	})
}

func (postgresql *PostgreSQL) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		postgresql.log.Sugar().Errorf("Failed to store document: %s", err)
		return classify(err)
	}
	return tx.Commit()
}

// classify maps constraint violations to storage errors.
func classify(err error) error {
	switch pgCode(err) {
	case pgerrcode.CheckViolation:
		return fmt.Errorf("%w: %s", ErrNegativeBalance, err)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", models.ErrNotFound, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
