package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-api/internal/auth"
	"github.com/iliyamo/contacts-api/internal/config"
	"github.com/iliyamo/contacts-api/internal/database"
	"github.com/iliyamo/contacts-api/internal/handler"
	"github.com/iliyamo/contacts-api/internal/middleware"
	"github.com/iliyamo/contacts-api/internal/queue"
	"github.com/iliyamo/contacts-api/internal/repository"
	"github.com/iliyamo/contacts-api/internal/router"
	"github.com/iliyamo/contacts-api/internal/service"
	"github.com/iliyamo/contacts-api/internal/validation"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env always wins

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()

	users := repository.NewUserRepo(db)
	contacts := repository.NewContactRepo(db)

	tokens := auth.NewTokenService(
		cfg.JWTSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour,
		time.Duration(cfg.EmailTTLHours)*time.Hour,
	)
	userCache := auth.NewUserCache(rdb)

	var avatars handler.AvatarUploader
	if cfg.CloudName != "" {
		svc, err := service.NewAvatarService(cfg.CloudName, cfg.CloudAPIKey, cfg.CloudAPISecret)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
		avatars = svc
	} else {
		log.Println("CLD_NAME not set, avatar upload disabled")
	}

	publisher := service.NewEmailPublisher(cfg.AMQPURL)
	mailer := queue.Mailer{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
	}
	go func() {
		if err := queue.StartEmailConsumer(cfg.AMQPURL, mailer); err != nil {
			log.Printf("email consumer stopped: %v", err)
		}
	}()

	authHandler := handler.NewAuthHandler(cfg, users, tokens, publisher)
	contactHandler := handler.NewContactHandler(contacts)
	userHandler := handler.NewUserHandler(users, avatars, userCache)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validation.New()

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler)
	router.RegisterAPI(e, router.APIDeps{
		Authenticate: middleware.Authenticate(tokens, userCache, users),
		Contacts:     contactHandler,
		Users:        userHandler,
		RateLimiter:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
