package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"questboard/internal/app"
	"questboard/internal/config"
	"questboard/internal/eventbus"
	"questboard/internal/pkg/auth"
	"questboard/internal/pkg/logger"
	"questboard/internal/service"
	"questboard/internal/storage"

	"go.uber.org/zap"
)

type store interface {
	storage.Storage
	storage.Seeder
}

func openStorage(ctx context.Context, l *logger.Logger) (store, error) {
	if config.DatabaseURI == "" {
		l.Info("DATABASE_URI is not set, using in-memory storage")
		return storage.NewMemory(l.Named("storage")), nil
	}
	db, err := storage.NewPostgreSQL(config.DatabaseURI, l.Named("storage"))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openPublisher(l *logger.Logger) (eventbus.Publisher, error) {
	if config.RabbitMQURL == "" {
		return eventbus.NewLogPublisher(l.Named("events")), nil
	}
	return eventbus.NewRabbitMQ(config.RabbitMQURL, config.EventsExchange, l.Named("events"))
}

func main() {
	var l *logger.Logger
	var err error
	if l, err = logger.CreateLogger(config.LogLevel); err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	auth.SetSecret(config.JWTSecret)

	ctx := context.Background()
	db, err := openStorage(ctx, l)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if config.SeedFile != "" {
		fixture, err := storage.ReadFixture(config.SeedFile)
		if err != nil {
			log.Fatal(err)
		}
		if err := storage.Seed(ctx, db, fixture); err != nil {
			log.Fatal(err)
		}
		l.Info("seeded storage", zap.String("file", config.SeedFile))
	}

	world, err := config.LoadWorld(config.WorldConfig)
	if err != nil {
		log.Fatal(err)
	}

	publisher, err := openPublisher(l)
	if err != nil {
		log.Fatal(err)
	}

	app, err := app.NewApp(ctx, db, app.Options{
		Currency:      world.Currency,
		Calendar:      world.Calendar,
		Publisher:     publisher,
		GMUsers:       config.GMUsers,
		QueueCapacity: config.QueueCapacity,
	}, l)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	if err := app.SchedulePrune(config.StockPruneSchedule); err != nil {
		log.Fatal(err)
	}

	service := service.NewService(app, config.ServerRunAddress, l)

	const readHeaderTimeout = 5 * time.Second
	server := &http.Server{Addr: config.ServerRunAddress, Handler: service.NewRouter(), ReadHeaderTimeout: readHeaderTimeout}

	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		const shutdownTimeout = 30 * time.Second
		shutdownCtx, cancel := context.WithTimeout(serverCtx, shutdownTimeout)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	l.Info("serving quest board", zap.String("address", config.ServerRunAddress))
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	<-serverCtx.Done()
}
