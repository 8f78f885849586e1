package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"questboard/internal/models"
)

// Fixture is a set of documents loaded into a store at startup.
type Fixture struct {
	Items  []models.Item  `json:"items"`
	Shops  []models.Shop  `json:"shops"`
	Actors []models.Actor `json:"actors"`
	Quests []models.Quest `json:"quests"`
}

// ReadFixture decodes a JSON fixture file.
func ReadFixture(path string) (Fixture, error) {
	var fixture Fixture
	data, err := os.ReadFile(path)
	if err != nil {
		return fixture, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fixture, fmt.Errorf("decoding fixture %s: %w", path, err)
	}
	return fixture, nil
}

// Seed stores every document of fixture. Item templates go first so that stock and rewards
// resolve as soon as their shop or quest is visible.
func Seed(ctx context.Context, s Seeder, fixture Fixture) error {
	for _, item := range fixture.Items {
		if err := s.PutItem(ctx, item); err != nil {
			return fmt.Errorf("seeding item %s: %w", item.ID, err)
		}
	}
	for _, shop := range fixture.Shops {
		if err := s.PutShop(ctx, shop); err != nil {
			return fmt.Errorf("seeding shop %s: %w", shop.Ref, err)
		}
	}
	for _, actor := range fixture.Actors {
		if err := s.PutActor(ctx, actor); err != nil {
			return fmt.Errorf("seeding actor %s: %w", actor.Ref, err)
		}
	}
	for _, quest := range fixture.Quests {
		if err := s.PutQuest(ctx, quest); err != nil {
			return fmt.Errorf("seeding quest %s: %w", quest.Ref, err)
		}
	}
	return nil
}
