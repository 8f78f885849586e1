package client_test

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"questboard/internal/app"
	"questboard/internal/client"
	"questboard/internal/models"
	"questboard/internal/pkg/logger"
	"questboard/internal/service"
	"questboard/internal/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

var testDatabaseURI string

func init() {
	if err := godotenv.Load("../../.env.test"); err != nil {
		log.Println("No .env.test file found, using environment")
	}
	testDatabaseURI = os.Getenv("TEST_DATABASE_URI")
}

// IntegrationTestSuite drives a host backed by PostgreSQL through the client.
type IntegrationTestSuite struct {
	suite.Suite
	server *httptest.Server
	db     *storage.PostgreSQL
	app    *app.App
	suffix string
}

func (s *IntegrationTestSuite) SetupSuite() {
	if testDatabaseURI == "" {
		s.T().Skip("TEST_DATABASE_URI is not set")
	}

	l, err := logger.CreateLogger("info")
	s.Require().NoError(err, "Failed to create logger")

	s.db, err = storage.NewPostgreSQL(testDatabaseURI, l)
	s.Require().NoError(err, "Error connecting to test database")
	s.Require().NoError(s.db.Migrate(context.Background()))

	s.suffix = uuid.NewString()[:8]
	s.Require().NoError(storage.Seed(context.Background(), s.db, s.fixture()))

	s.app, err = app.NewApp(context.Background(), s.db, app.Options{GMUsers: []string{"dm-" + s.suffix}}, l)
	s.Require().NoError(err)

	serviceInstance := service.NewService(s.app, "localhost:0", l)
	s.server = httptest.NewServer(serviceInstance.NewRouter())
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
	if s.app != nil {
		s.app.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func (s *IntegrationTestSuite) ref(kind, name string) string {
	return kind + "." + name + s.suffix
}

func (s *IntegrationTestSuite) fixture() storage.Fixture {
	qty := 3
	return storage.Fixture{
		Items: []models.Item{{
			ID: s.ref("Item", "potion"), Name: "Potion of Healing", Type: models.ItemTypeConsumable, Quantity: 1,
			Price: models.Cost{Value: decimal.NewFromInt(50), Denomination: "gp"},
		}},
		Shops: []models.Shop{{
			Ref: s.ref("JournalEntry", "shop"), Name: "The Gilded Flagon",
			Stock: []models.StockEntry{{ItemRef: s.ref("Item", "potion"), Quantity: &qty}},
		}},
		Actors: []models.Actor{
			{Ref: s.ref("Actor", "mira"), Name: "Mira", Currency: models.Wallet{"gp": 120}},
			{Ref: s.ref("Actor", "tarn"), Name: "Tarn", Currency: models.Wallet{}},
		},
		Quests: []models.Quest{{
			Ref: s.ref("JournalEntry", "quest"), Name: "Rats in the Cellar", Type: models.QuestTypeSide,
			Rewards: models.Rewards{
				Items:    []models.RewardEntry{{ItemRef: s.ref("Item", "potion")}},
				Currency: models.Wallet{"gp": 10},
			},
		}},
	}
}

func (s *IntegrationTestSuite) TestPurchase() {
	ctx := context.Background()
	c := client.New(s.server.URL, 5*time.Second, logger.Nop())
	s.Require().NoError(c.Login(ctx, "player-"+s.suffix, "password"))

	result, err := c.Purchase(ctx, models.PurchaseRequest{
		ShopRef: s.ref("JournalEntry", "shop"), StockID: s.ref("Item", "potion"), BuyerRef: s.ref("Actor", "mira"), Quantity: 2,
	})
	s.Require().NoError(err)
	s.Require().True(result.Success, result.Reason)

	actor, err := s.db.Actor(ctx, s.ref("Actor", "mira"))
	s.Require().NoError(err)
	s.Equal(int64(20), actor.Currency["gp"])

	result, err = c.Purchase(ctx, models.PurchaseRequest{
		ShopRef: s.ref("JournalEntry", "shop"), StockID: s.ref("Item", "potion"), BuyerRef: s.ref("Actor", "mira"), Quantity: 1,
	})
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal(models.CodeInsufficientFunds, result.Code)
}

func (s *IntegrationTestSuite) TestGrantRewards() {
	ctx := context.Background()
	player := client.New(s.server.URL, 5*time.Second, logger.Nop())
	s.Require().NoError(player.Login(ctx, "player-"+s.suffix, "password"))

	req := models.GrantRewardsRequest{QuestRef: s.ref("JournalEntry", "quest"), ActorRef: s.ref("Actor", "tarn"), Complete: true}
	_, err := player.GrantRewards(ctx, req)
	s.Require().ErrorIs(err, client.ErrUnexpectedStatus)

	gm := client.New(s.server.URL, 5*time.Second, logger.Nop())
	s.Require().NoError(gm.Login(ctx, "dm-"+s.suffix, "password"))
	result, err := gm.GrantRewards(ctx, req)
	s.Require().NoError(err)
	s.Require().True(result.Success, result.Reason)

	quest, err := s.db.Quest(ctx, s.ref("JournalEntry", "quest"))
	s.Require().NoError(err)
	s.True(quest.Complete)

	actor, err := s.db.Actor(ctx, s.ref("Actor", "tarn"))
	s.Require().NoError(err)
	s.Equal(int64(10), actor.Currency["gp"])
	s.Len(actor.Items, 1)
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
