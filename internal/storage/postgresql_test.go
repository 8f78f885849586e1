package storage

import (
	"context"
	"log"
	"os"
	"testing"

	"questboard/internal/models"
	"questboard/internal/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

var testDatabaseURI string

func init() {
	if err := godotenv.Load(".env.test"); err != nil {
		log.Println("No .env.test file found, using environment")
	}
	testDatabaseURI = os.Getenv("TEST_DATABASE_URI")
}

type PostgreSQLTestSuite struct {
	suite.Suite
	db  *PostgreSQL
	ctx context.Context
}

func TestPostgreSQLSuite(t *testing.T) {
	if testDatabaseURI == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}
	suite.Run(t, new(PostgreSQLTestSuite))
}

func (s *PostgreSQLTestSuite) SetupSuite() {
	l, err := logger.CreateLogger("info")
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.db, err = NewPostgreSQL(testDatabaseURI, l)
	s.Require().NoError(err, "Error connecting to test database")
	s.Require().NoError(s.db.Migrate(s.ctx))
}

func (s *PostgreSQLTestSuite) TearDownSuite() {
	s.db.Close()
}

func (s *PostgreSQLTestSuite) SetupTest() {
	s.Require().NoError(s.db.PutItem(s.ctx, models.Item{
		ID: "Item.backpack", Name: "Backpack", Type: models.ItemTypeContainer, Quantity: 1,
		Price: models.Cost{Value: decimal.NewFromInt(2), Denomination: "gp"},
		Contents: []models.Item{
			{ID: "Item.backpack.rope", Name: "Rope", Type: models.ItemTypeTool, Quantity: 1},
		},
	}))
	s.Require().NoError(s.db.PutShop(s.ctx, models.Shop{
		Ref:  "JournalEntry.pgshop",
		Name: "Outfitter",
		Stock: []models.StockEntry{{
			ItemRef:  "Item.backpack",
			Price:    models.StockPrice{Each: models.Price{Value: decimal.NewNullDecimal(decimal.RequireFromString("1.5")), Denomination: "gp"}},
			Quantity: intPtr(3),
		}},
	}))
	s.Require().NoError(s.db.PutActor(s.ctx, models.Actor{Ref: "Actor.pgbuyer", Name: "Tor", Currency: models.Wallet{"gp": 5}}))
	s.Require().NoError(s.db.PutQuest(s.ctx, models.Quest{
		Ref: "JournalEntry.pgquest", Name: "Lost Caravan", Type: models.QuestTypeMajor,
		Rewards: models.Rewards{
			Items:    []models.RewardEntry{{ItemRef: "Item.backpack"}},
			Currency: models.Wallet{"sp": 20},
		},
	}))
}

func (s *PostgreSQLTestSuite) TestDocuments() {
	item, err := s.db.Item(s.ctx, "Item.backpack")
	s.Require().NoError(err)
	s.Len(item.Contents, 1)
	s.Equal("Rope", item.Contents[0].Name)

	shop, err := s.db.Shop(s.ctx, "JournalEntry.pgshop")
	s.Require().NoError(err)
	s.Require().Len(shop.Stock, 1)
	s.Equal("Item-backpack", shop.Stock[0].ID)
	s.True(shop.Stock[0].Price.Each.Value.Valid)
	s.False(shop.Stock[0].Price.Stack.Value.Valid)

	quest, err := s.db.Quest(s.ctx, "JournalEntry.pgquest")
	s.Require().NoError(err)
	s.Equal(int64(20), quest.Rewards.Currency["sp"])
	s.Nil(quest.Rewards.Items[0].Quantity)

	_, err = s.db.Actor(s.ctx, "Actor.nobody")
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *PostgreSQLTestSuite) TestApplyCommitsTogether() {
	err := s.db.Apply(s.ctx,
		models.UpsertStock{ShopRef: "JournalEntry.pgshop", Entry: models.StockEntry{ID: "Item-backpack", ItemRef: "Item.backpack", Quantity: intPtr(1)}},
		models.AdjustCurrency{ActorRef: "Actor.pgbuyer", Delta: models.Wallet{"gp": -3}},
		models.GrantItems{ActorRef: "Actor.pgbuyer", Create: []models.Item{{ID: "pg-owned-1", Name: "Backpack", Type: models.ItemTypeContainer, Quantity: 1, SourceRef: "Item.backpack"}}},
	)
	s.Require().NoError(err)

	actor, err := s.db.Actor(s.ctx, "Actor.pgbuyer")
	s.Require().NoError(err)
	s.Equal(int64(2), actor.Currency["gp"])
	s.Len(actor.Items, 1)

	shop, _ := s.db.Shop(s.ctx, "JournalEntry.pgshop")
	s.Equal(1, *shop.Stock[0].Quantity)
}

func (s *PostgreSQLTestSuite) TestOwnedItemsAreNotTemplates() {
	err := s.db.Apply(s.ctx, models.GrantItems{ActorRef: "Actor.pgbuyer", Create: []models.Item{
		{ID: "pg-owned-2", Name: "Lantern", Type: models.ItemTypeTool, Quantity: 1},
	}})
	s.Require().NoError(err)

	_, err = s.db.Item(s.ctx, "pg-owned-2")
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *PostgreSQLTestSuite) TestPutActorStoresContentsFlat() {
	s.Require().NoError(s.db.PutActor(s.ctx, models.Actor{
		Ref: "Actor.pgpacker", Name: "Wren", Currency: models.Wallet{},
		Items: []models.Item{{
			ID: "pg-pack", Name: "Backpack", Type: models.ItemTypeContainer, Quantity: 1,
			Contents: []models.Item{{ID: "pg-pack-rope", Name: "Rope", Type: models.ItemTypeTool, Quantity: 1}},
		}},
	}))

	actor, err := s.db.Actor(s.ctx, "Actor.pgpacker")
	s.Require().NoError(err)
	s.Require().Len(actor.Items, 2)
	s.Equal("pg-pack", actor.Items[0].ID)
	s.Equal("pg-pack-rope", actor.Items[1].ID)
	s.Equal("pg-pack", actor.Items[1].ContainerID)
}

func (s *PostgreSQLTestSuite) TestApplyRollsBack() {
	err := s.db.Apply(s.ctx,
		models.RemoveStock{ShopRef: "JournalEntry.pgshop", StockID: "Item-backpack"},
		models.AdjustCurrency{ActorRef: "Actor.pgbuyer", Delta: models.Wallet{"gp": -500}},
	)
	s.ErrorIs(err, ErrNegativeBalance)

	shop, _ := s.db.Shop(s.ctx, "JournalEntry.pgshop")
	s.Len(shop.Stock, 1)
	actor, _ := s.db.Actor(s.ctx, "Actor.pgbuyer")
	s.Equal(int64(5), actor.Currency["gp"])
}

func (s *PostgreSQLTestSuite) TestEvents() {
	events := []models.CalendarEvent{
		{ID: "pg-e1", Date: models.EventDate{Day: 18, Year: 0}, Duration: 4, Repeat: models.RepeatYearly, Pages: []string{"JournalEntry.a", "JournalEntry.b"}},
	}
	s.Require().NoError(s.db.SaveEvents(s.ctx, events))

	loaded, err := s.db.LoadEvents(s.ctx)
	s.Require().NoError(err)
	s.Equal(events, loaded)
}
