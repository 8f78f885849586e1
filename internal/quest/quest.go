// Package quest grants quest rewards to actors and edits quest reward sets.
package quest

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

	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest indicates a malformed request.
	ErrInvalidRequest = errors.New("quest: invalid request")
	// ErrQuestNotFound indicates that the quest does not exist.
	ErrQuestNotFound = errors.New("quest: quest not found")
	// ErrActorNotFound indicates that the receiving actor does not exist.
	ErrActorNotFound = errors.New("quest: actor not found")
	// ErrNoRewards indicates a quest without any grantable reward.
	ErrNoRewards = errors.New("quest: no rewards to grant")
	// ErrItemNotFound indicates an item reference that does not resolve.
	ErrItemNotFound = errors.New("quest: item not found")
	// ErrItemNotAllowed indicates an item type that cannot be a reward.
	ErrItemNotAllowed = errors.New("quest: item type not allowed")
	// ErrRewardNotFound indicates a reward entry that does not exist.
	ErrRewardNotFound = errors.New("quest: reward not found")
	// ErrCommitFailed indicates that storing the change failed. Nothing was changed.
	ErrCommitFailed = errors.New("quest: commit failed")
)

// Store is the persistence the service works against.
type Store interface {
	Quest(ctx context.Context, ref string) (models.Quest, error)
	Actor(ctx context.Context, ref string) (models.Actor, error)
	Item(ctx context.Context, ref string) (models.Item, error)
	Apply(ctx context.Context, cmds ...models.Command) error
}

// Grant describes rewards handed to an actor.
type Grant struct {
	QuestRef  string        `json:"questRef"`
	QuestName string        `json:"questName"`
	ActorRef  string        `json:"actorRef"`
	ActorName string        `json:"actorName"`
	Items     []string      `json:"items"`
	Currency  models.Wallet `json:"currency"`
	Completed bool          `json:"completed"`
}

// Service grants and edits quest rewards.
type Service struct {
	store   Store
	queue   *queue.Queue
	table   *currency.Table
	batcher *grant.Batcher
	log     *logger.Logger
}

// NewService creates a Service sharing the admission queue q with the shop engine.
func NewService(store Store, q *queue.Queue, table *currency.Table, log *logger.Logger) *Service {
	return &Service{store: store, queue: q, table: table, batcher: grant.New(), log: log}
}

// GrantRewards hands a quest's item and currency rewards to an actor and optionally marks the
// quest complete, all in one commit. Reward entries whose items no longer resolve are skipped
// and containers are granted once each.
func (s *Service) GrantRewards(ctx context.Context, req models.GrantRewardsRequest) (Grant, error) {
	if req.QuestRef == "" || req.ActorRef == "" {
		return Grant{}, fmt.Errorf("%w: quest and actor are required", ErrInvalidRequest)
	}

	var result Grant
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.grant(ctx, req)
		return err
	})
	if err != nil {
		s.log.Info("reward grant failed", zap.String("quest", req.QuestRef), zap.String("actor", req.ActorRef), zap.Error(err))
		return Grant{}, err
	}

	s.log.Info("rewards granted",
		zap.String("quest", result.QuestRef),
		zap.String("actor", result.ActorRef),
		zap.Int("items", len(result.Items)),
		zap.Bool("completed", result.Completed))
	return result, nil
}

func (s *Service) grant(ctx context.Context, req models.GrantRewardsRequest) (Grant, error) {
	quest, err := s.store.Quest(ctx, req.QuestRef)
	if errors.Is(err, models.ErrNotFound) {
		return Grant{}, fmt.Errorf("%w: %q", ErrQuestNotFound, req.QuestRef)
	}
	if err != nil {
		return Grant{}, err
	}
	actor, err := s.store.Actor(ctx, req.ActorRef)
	if errors.Is(err, models.ErrNotFound) {
		return Grant{}, fmt.Errorf("%w: %q", ErrActorNotFound, req.ActorRef)
	}
	if err != nil {
		return Grant{}, err
	}

	result := Grant{
		QuestRef:  quest.Ref,
		QuestName: quest.Name,
		ActorRef:  actor.Ref,
		ActorName: actor.Name,
		Currency:  make(models.Wallet),
	}

	var requests []grant.Request
	for _, entry := range collection.NewRewards(quest.Rewards.Items).Entries() {
		item, err := s.store.Item(ctx, entry.ItemRef)
		if errors.Is(err, models.ErrNotFound) {
			s.log.Warn("skipping unresolvable reward", zap.String("quest", quest.Ref), zap.String("item", entry.ItemRef))
			continue
		}
		if err != nil {
			return Grant{}, err
		}
		quantity := collection.QuantityFor(entry, item)
		if item.Type == models.ItemTypeContainer {
			quantity = 1
		}
		requests = append(requests, grant.Request{Item: item, Quantity: quantity})
		result.Items = append(result.Items, item.Name)
	}

	for key, amount := range quest.Rewards.Currency {
		if s.table.Has(key) && amount > 0 {
			result.Currency[key] = amount
		}
	}

	if len(requests) == 0 && len(result.Currency) == 0 {
		return Grant{}, fmt.Errorf("%w: %s", ErrNoRewards, quest.Name)
	}

	batch := s.batcher.Batch(actor.Items, requests)
	cmds := []models.Command{models.GrantItems{ActorRef: actor.Ref, Create: batch.Create, Update: batch.Update}}
	if len(result.Currency) > 0 {
		cmds = append(cmds, models.AdjustCurrency{ActorRef: actor.Ref, Delta: result.Currency})
	}
	if req.Complete {
		cmds = append(cmds, models.SetQuestComplete{QuestRef: quest.Ref})
		result.Completed = true
	}

	if err := s.store.Apply(ctx, cmds...); err != nil {
		return Grant{}, fmt.Errorf("%w: %s", ErrCommitFailed, err)
	}
	return result, nil
}

// AddReward adds an item to a quest's rewards. An item already rewarded grows by its natural
// quantity instead of producing a second entry.
func (s *Service) AddReward(ctx context.Context, questRef, itemRef string) (models.RewardEntry, error) {
	if questRef == "" || itemRef == "" {
		return models.RewardEntry{}, fmt.Errorf("%w: quest and item are required", ErrInvalidRequest)
	}

	var entry models.RewardEntry
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		quest, err := s.loadQuest(ctx, questRef)
		if err != nil {
			return err
		}
		item, err := s.store.Item(ctx, itemRef)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrItemNotFound, itemRef)
		}
		if err != nil {
			return err
		}
		if !models.AllowedItemTypes[item.Type] {
			return fmt.Errorf("%w: %s", ErrItemNotAllowed, item.Type)
		}

		entry = collection.NewRewards(quest.Rewards.Items).Add(itemRef, item.Quantity)
		if err := s.store.Apply(ctx, models.UpsertReward{QuestRef: quest.Ref, Entry: entry}); err != nil {
			return fmt.Errorf("%w: %s", ErrCommitFailed, err)
		}
		return nil
	})
	return entry, err
}

// RemoveReward removes an item from a quest's rewards.
func (s *Service) RemoveReward(ctx context.Context, questRef, rewardID string) error {
	return s.queue.Do(ctx, func(ctx context.Context) error {
		quest, err := s.loadQuest(ctx, questRef)
		if err != nil {
			return err
		}
		entry, ok := collection.NewRewards(quest.Rewards.Items).Get(rewardID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrRewardNotFound, rewardID)
		}
		if err := s.store.Apply(ctx, models.RemoveReward{QuestRef: quest.Ref, RewardID: entry.ID}); err != nil {
			return fmt.Errorf("%w: %s", ErrCommitFailed, err)
		}
		return nil
	})
}

func (s *Service) loadQuest(ctx context.Context, ref string) (models.Quest, error) {
	quest, err := s.store.Quest(ctx, ref)
	if errors.Is(err, models.ErrNotFound) {
		return quest, fmt.Errorf("%w: %q", ErrQuestNotFound, ref)
	}
	return quest, err
}
