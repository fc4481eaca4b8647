package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/subkeeper/subkeeper"
	"github.com/subkeeper/subkeeper/bolt"
	"github.com/subkeeper/subkeeper/http"
	"github.com/subkeeper/subkeeper/sqlite"
)

func main() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("db.type", "sqlite")
	viper.SetDefault("subscription.statuses", subkeeper.DefaultStatuses())

	var config *subkeeper.Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatal(err)
	}
	if err := config.Validate(); err != nil {
		log.Fatal(err)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn: config.Sentry.DSN,
	}); err != nil {
		log.Fatalf("sentry.Init: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	a := newApp(config)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		_ = a.Close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := a.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	config     *subkeeper.Config
	db         subkeeper.Database
	httpServer *http.Server
	cron       *cron.Cron
}

func newApp(config *subkeeper.Config) *app {
	httpServer, err := http.NewServer()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
	return &app{
		config:     config,
		httpServer: httpServer,
	}
}

func (a *app) Run(ctx context.Context) error {
	statuses := a.config.Statuses()

	var subscriptionService subkeeper.SubscriptionService
	switch a.config.DB.Type {
	case "bolt":
		db := bolt.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return err
		}
		a.db = db
		subscriptionService = bolt.NewSubscriptionService(db, statuses)
	default:
		db := sqlite.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return err
		}
		a.db = db
		subscriptionService = sqlite.NewSubscriptionService(db, statuses)
	}

	a.httpServer.Addr = a.config.HTTP.Addr
	a.httpServer.SubscriptionService = subscriptionService
	a.httpServer.Policy = subkeeper.NewAllowList(a.config.Admin.Emails)

	if err := a.httpServer.Open(); err != nil {
		return err
	}

	if spec := a.config.Stats.Cron.Spec; spec != "" {
		zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(spec, func() {
			stats, err := subscriptionService.Stats()
			if err != nil {
				zlog.Error().Err(err).Msg("stats digest failed")
				sentry.CaptureException(err)
				return
			}
			zlog.Info().
				Int("total", stats.Total).
				Interface("by_status", stats.ByStatus).
				Interface("by_plan", stats.ByPlan).
				Msg("subscription stats digest")
		}); err != nil {
			return err
		}
		a.cron.Start()
	}

	return nil
}

func (a *app) Close() error {
	if a.cron != nil {
		a.cron.Stop()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Close(); err != nil {
			return err
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}

	return nil
}
