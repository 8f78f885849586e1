package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"questboard/internal/collection"
	"questboard/internal/models"
	"questboard/internal/pkg/logger"
	"questboard/internal/pkg/security"
)

// state is the full document set held by the in-memory driver.
type state struct {
	shops  map[string]models.Shop
	actors map[string]models.Actor
	quests map[string]models.Quest
}

func (s state) clone() state {
	out := state{
		shops:  make(map[string]models.Shop, len(s.shops)),
		actors: make(map[string]models.Actor, len(s.actors)),
		quests: make(map[string]models.Quest, len(s.quests)),
	}
	for ref, shop := range s.shops {
		out.shops[ref] = cloneShop(shop)
	}
	for ref, actor := range s.actors {
		out.actors[ref] = cloneActor(actor)
	}
	for ref, quest := range s.quests {
		out.quests[ref] = cloneQuest(quest)
	}
	return out
}

// Memory implements the Storage interface in process memory. Apply works on a copy of the
// documents and swaps it in only when every command succeeded.
type Memory struct {
	mu     sync.RWMutex
	docs   state
	items  map[string]models.Item
	users  map[string]models.User
	nextID int32
	events []models.CalendarEvent
	log    *logger.Logger
}

// NewMemory creates an empty in-memory storage.
func NewMemory(l *logger.Logger) *Memory {
	return &Memory{
		docs: state{
			shops:  make(map[string]models.Shop),
			actors: make(map[string]models.Actor),
			quests: make(map[string]models.Quest),
		},
		items: make(map[string]models.Item),
		users: make(map[string]models.User),
		log:   l,
	}
}

// Close is a no-op for the in-memory driver.
func (m *Memory) Close() {}

// CheckUser looks the user up by name and verifies the password.
// An unknown user is returned unchanged with a zero ID.
func (m *Memory) CheckUser(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.RLock()
	stored, ok := m.users[user.Username]
	m.mu.RUnlock()
	if !ok {
		return user, nil
	}

	if err := security.CheckPassword(stored.Password, user.Password); err != nil {
		m.log.Sugar().Infof("Rejected credentials of %s: %s", user.Username, err)
		return user, fmt.Errorf("%w: %s", ErrInvalidCredentials, err)
	}

	user.ID = stored.ID
	return user, nil
}

// CreateUser registers a new user with a hashed password.
func (m *Memory) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Username]; ok {
		return user, ErrUserExists
	}
	hash, err := security.HashPassword(user.Password)
	if err != nil {
		return user, err
	}
	m.nextID++
	user.ID = m.nextID
	m.users[user.Username] = models.User{
		ID:       user.ID,
		Username: user.Username,
		Password: hash,
	}
	return user, nil
}

// Shop returns a copy of a shop.
func (m *Memory) Shop(ctx context.Context, ref string) (models.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shop, ok := m.docs.shops[ref]
	if !ok {
		return models.Shop{}, fmt.Errorf("%w: shop %q", models.ErrNotFound, ref)
	}
	return cloneShop(shop), nil
}

// Shops returns copies of all shops ordered by reference.
func (m *Memory) Shops(ctx context.Context) ([]models.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shops := make([]models.Shop, 0, len(m.docs.shops))
	for _, shop := range m.docs.shops {
		shops = append(shops, cloneShop(shop))
	}
	sort.Slice(shops, func(i, j int) bool { return shops[i].Ref < shops[j].Ref })
	return shops, nil
}

// Actor returns a copy of an actor with its wallet and owned items.
func (m *Memory) Actor(ctx context.Context, ref string) (models.Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actor, ok := m.docs.actors[ref]
	if !ok {
		return models.Actor{}, fmt.Errorf("%w: actor %q", models.ErrNotFound, ref)
	}
	return cloneActor(actor), nil
}

// Item returns a copy of an item template with its nested contents.
func (m *Memory) Item(ctx context.Context, ref string) (models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[ref]
	if !ok {
		return models.Item{}, fmt.Errorf("%w: item %q", models.ErrNotFound, ref)
	}
	return cloneItem(item), nil
}

// Quest returns a copy of a quest.
func (m *Memory) Quest(ctx context.Context, ref string) (models.Quest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	quest, ok := m.docs.quests[ref]
	if !ok {
		return models.Quest{}, fmt.Errorf("%w: quest %q", models.ErrNotFound, ref)
	}
	return cloneQuest(quest), nil
}

// Apply runs the commands against a copy of the documents and publishes the copy only if
// all of them succeed.
func (m *Memory) Apply(ctx context.Context, cmds ...models.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.docs.clone()
	for _, cmd := range cmds {
		if err := next.apply(cmd); err != nil {
			m.log.Sugar().Errorf("Failed to apply command %s: %s", models.CommandName(cmd), err)
			return err
		}
	}
	m.docs = next
	return nil
}

func (s state) apply(cmd models.Command) error {
	switch c := cmd.(type) {
	case models.UpsertStock:
		c.Entry.Quantity = cloneIntPtr(c.Entry.Quantity)
		shop, ok := s.shops[c.ShopRef]
		if !ok {
			return fmt.Errorf("%w: shop %q", models.ErrNotFound, c.ShopRef)
		}
		for i, entry := range shop.Stock {
			if entry.ID == c.Entry.ID {
				shop.Stock[i] = c.Entry
				s.shops[c.ShopRef] = shop
				return nil
			}
		}
		shop.Stock = append(shop.Stock, c.Entry)
		s.shops[c.ShopRef] = shop

	case models.RemoveStock:
		shop, ok := s.shops[c.ShopRef]
		if !ok {
			return fmt.Errorf("%w: shop %q", models.ErrNotFound, c.ShopRef)
		}
		for i, entry := range shop.Stock {
			if entry.ID == c.StockID {
				shop.Stock = append(shop.Stock[:i], shop.Stock[i+1:]...)
				s.shops[c.ShopRef] = shop
				return nil
			}
		}
		return fmt.Errorf("%w: stock %q in shop %q", models.ErrNotFound, c.StockID, c.ShopRef)

	case models.AdjustCurrency:
		actor, ok := s.actors[c.ActorRef]
		if !ok {
			return fmt.Errorf("%w: actor %q", models.ErrNotFound, c.ActorRef)
		}
		if actor.Currency == nil {
			actor.Currency = make(models.Wallet)
		}
		for key, delta := range c.Delta {
			if actor.Currency[key]+delta < 0 {
				return fmt.Errorf("%w: actor %q, %s", ErrNegativeBalance, c.ActorRef, key)
			}
			actor.Currency[key] += delta
		}
		s.actors[c.ActorRef] = actor

	case models.GrantItems:
		actor, ok := s.actors[c.ActorRef]
		if !ok {
			return fmt.Errorf("%w: actor %q", models.ErrNotFound, c.ActorRef)
		}
		for _, update := range c.Update {
			found := false
			for i := range actor.Items {
				if actor.Items[i].ID == update.ID {
					actor.Items[i].Quantity = update.Quantity
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w: item %q on actor %q", models.ErrNotFound, update.ID, c.ActorRef)
			}
		}
		for _, item := range c.Create {
			actor.Items = append(actor.Items, cloneItem(item))
		}
		s.actors[c.ActorRef] = actor

	case models.UpsertReward:
		c.Entry.Quantity = cloneIntPtr(c.Entry.Quantity)
		quest, ok := s.quests[c.QuestRef]
		if !ok {
			return fmt.Errorf("%w: quest %q", models.ErrNotFound, c.QuestRef)
		}
		for i, entry := range quest.Rewards.Items {
			if entry.ID == c.Entry.ID {
				quest.Rewards.Items[i] = c.Entry
				s.quests[c.QuestRef] = quest
				return nil
			}
		}
		quest.Rewards.Items = append(quest.Rewards.Items, c.Entry)
		s.quests[c.QuestRef] = quest

	case models.RemoveReward:
		quest, ok := s.quests[c.QuestRef]
		if !ok {
			return fmt.Errorf("%w: quest %q", models.ErrNotFound, c.QuestRef)
		}
		for i, entry := range quest.Rewards.Items {
			if entry.ID == c.RewardID {
				quest.Rewards.Items = append(quest.Rewards.Items[:i], quest.Rewards.Items[i+1:]...)
				s.quests[c.QuestRef] = quest
				return nil
			}
		}
		return fmt.Errorf("%w: reward %q in quest %q", models.ErrNotFound, c.RewardID, c.QuestRef)

	case models.SetQuestComplete:
		quest, ok := s.quests[c.QuestRef]
		if !ok {
			return fmt.Errorf("%w: quest %q", models.ErrNotFound, c.QuestRef)
		}
		quest.Complete = true
		s.quests[c.QuestRef] = quest

	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return nil
}

// LoadEvents returns a copy of the stored calendar events.
func (m *Memory) LoadEvents(ctx context.Context) ([]models.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneEvents(m.events), nil
}

// SaveEvents replaces the stored calendar events.
func (m *Memory) SaveEvents(ctx context.Context, events []models.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = cloneEvents(events)
	return nil
}

// PutShop stores a shop, replacing any shop with the same reference.
func (m *Memory) PutShop(ctx context.Context, shop models.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	shop = cloneShop(shop)
	for i := range shop.Stock {
		shop.Stock[i].ID = collection.Key(shop.Stock[i].ItemRef)
	}
	m.docs.shops[shop.Ref] = shop
	return nil
}

// PutActor stores an actor. Nested item contents are stored flat.
func (m *Memory) PutActor(ctx context.Context, actor models.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	actor = cloneActor(actor)
	actor.Items = flattenOwned(actor.Items)
	m.docs.actors[actor.Ref] = actor
	return nil
}

// PutItem stores an item template.
func (m *Memory) PutItem(ctx context.Context, item models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = cloneItem(item)
	return nil
}

// DeleteItem removes an item template. References to it stop resolving.
func (m *Memory) DeleteItem(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, ref)
	return nil
}

// PutQuest stores a quest.
func (m *Memory) PutQuest(ctx context.Context, quest models.Quest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quest = cloneQuest(quest)
	for i := range quest.Rewards.Items {
		quest.Rewards.Items[i].ID = collection.Key(quest.Rewards.Items[i].ItemRef)
	}
	m.docs.quests[quest.Ref] = quest
	return nil
}
