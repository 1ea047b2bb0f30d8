package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/dogukan1212/moiport-sub000/api"
	"github.com/dogukan1212/moiport-sub000/domain"
	"github.com/dogukan1212/moiport-sub000/realtime"
	"github.com/dogukan1212/moiport-sub000/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTable := os.Getenv("TASKS_TABLE")
	projectsTable := os.Getenv("PROJECTS_TABLE")
	usersTable := os.Getenv("USERS_TABLE")
	watchersTable := os.Getenv("WATCHERS_TABLE")
	notificationsQueue := os.Getenv("NOTIFICATIONS_QUEUE")
	if connStr == "" || tasksTable == "" || projectsTable == "" || usersTable == "" || watchersTable == "" || notificationsQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tasksTable, projectsTable, usersTable, watchersTable)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	notifier, err := storage.NewQueueNotifier(connStr, notificationsQueue)
	if err != nil {
		log.Fatalf("notification queue: %v", err)
	}
	var sms domain.SMSSender
	if queueName := os.Getenv("SMS_QUEUE"); queueName != "" {
		smsQueue, err := storage.NewQueueSMS(connStr, queueName)
		if err != nil {
			log.Fatalf("sms queue: %v", err)
		}
		sms = smsQueue
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	ttl := 24 * time.Hour
	if v := os.Getenv("DEDUPER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid DEDUPER_TTL: %v", err)
		}
		ttl = d
	}
	deduper := api.NewRedisDeduper(rc, ttl)

	logger := log.New()
	hub := realtime.NewHub()
	backplane := realtime.NewBackplane(rc, os.Getenv("BOARD_EVENTS_CHANNEL"), hub, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go backplane.Run(ctx)

	board := domain.NewBoard(store, backplane, notifier, sms, logger)

	testMode := os.Getenv("AUTH0_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domainName := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domainName == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domainName)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domainName+"/")
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, board, auth, deduper, hub, backplane, store, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("BOARD_SERVICE_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
