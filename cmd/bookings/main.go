package main

import (
	"context"
	"time"

	bookingsHandler "roombook/internal/bookings/handler"
	bookingsRepository "roombook/internal/bookings/repository"
	bookingsService "roombook/internal/bookings/service"
	bookingsValidator "roombook/internal/bookings/validator"
	"roombook/internal/roomlock"
	roomsHandler "roombook/internal/rooms/handler"
	roomsRepository "roombook/internal/rooms/repository"
	roomsService "roombook/internal/rooms/service"
	roomsValidator "roombook/internal/rooms/validator"
	usersHandler "roombook/internal/users/handler"
	usersRepository "roombook/internal/users/repository"
	usersService "roombook/internal/users/service"
	usersValidator "roombook/internal/users/validator"
	"roombook/pkg/app"
	"roombook/pkg/config"
	"roombook/pkg/kafka"
	kafka_config "roombook/pkg/kafka/config"
	kafka_middleware "roombook/pkg/kafka/middleware"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Bookings service")
	serverApp := app.NewApplication(cfg)

	locker := initLocker(cfg)
	events, closeEvents := initEvents(cfg)
	serverApp.OnShutdown(closeEvents)

	bookingRepo := bookingsRepository.NewMongoBookingRepository(cfg)
	roomRepo := roomsRepository.NewMongoRoomRepository(cfg)
	userRepo := usersRepository.NewMongoUserRepository(cfg)

	bookingService := bookingsService.NewBookingService(
		bookingRepo,
		roomRepo,
		locker,
		bookingsValidator.NewBookingValidator(cfg.Log),
		events,
		cfg,
	)
	roomService := roomsService.NewRoomService(
		roomRepo,
		bookingRepo,
		locker,
		roomsValidator.NewRoomValidator(cfg.Log),
		cfg,
	)
	userService := usersService.NewUserService(
		userRepo,
		bookingRepo,
		usersValidator.NewUserValidator(cfg.Log),
		cfg,
	)

	if cfg.AdminUsername != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := userService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminEmail)
		cancel()
		if err != nil {
			cfg.Log.Fatal("Failed to bootstrap administrator", "error", err)
		}
	}

	serverApp.SetApp(
		userService,
		bookingsHandler.NewBookingHandler(bookingService, cfg.BookingLocation(), cfg.Log),
		roomsHandler.NewRoomHandler(roomService, cfg.Log),
		usersHandler.NewUserHandler(userService, cfg.Log),
	)
	serverApp.OnShutdown(cfg.GracefulShutdown)

	cfg.Log.Info("Bookings service initialized", "database", cfg.MongoDatabaseName)
	serverApp.Run()
}

func initLocker(cfg *config.Config) roomlock.Locker {
	var store roomlock.Store
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		store = roomlock.NewRedisStore(cfg.Client.Redis)
	default:
		store = roomlock.NewMongoStore(cfg)
	}
	cfg.Log.Info("Room lock backend selected", "backend", cfg.LockBackend)
	return roomlock.NewLocker(store, roomlock.Options{
		Backend: cfg.LockBackend,
		TTL:     cfg.LockTTL,
		Wait:    cfg.LockWaitTimeout,
	}, cfg.Log)
}

// initEvents returns a no-op publisher unless EVENTS_ENABLED is set.
func initEvents(cfg *config.Config) (bookingsService.EventPublisher, func()) {
	if !cfg.EventsEnabled {
		return bookingsService.NopPublisher{}, func() {}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.MetricsProducerMiddleware())
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	}

	return kafka.NewBookingEventPublisher(producer), func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
			return
		}
		cfg.Log.Info("Kafka producer closed")
	}
}
