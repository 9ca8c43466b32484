// Command watch keeps a terminal view of the signed-in user's requests and
// notifications fresh against a running tracker API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/apiclient"
	"github.com/govindrajpootecosoul/project-tracker/internal/config"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/syncer"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const feedLimit = 10

type feed struct {
	Items  []models.Notification
	Unread int
}

func cloneFeed(f feed) feed {
	f.Items = append([]models.Notification(nil), f.Items...)
	return f
}

func cloneRequests(reqs []models.Request) []models.Request {
	return append([]models.Request(nil), reqs...)
}

func main() {
	markRead := flag.Bool("mark-read", false, "mark every notification read on start")
	flag.Parse()

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()
	log.SetFlags(0)
	log.SetOutput(logger)

	cfg, err := config.LoadSync()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	client, err := apiclient.New(cfg.APIURL, cfg.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New(logger)
	requests := syncer.NewOptimistic[[]models.Request](nil, cloneRequests)
	notifications := syncer.NewOptimistic(feed{}, cloneFeed)

	opts := []syncer.Option{syncer.WithErrorHandler(func(source string, err error) {
		logger.Warn().Err(err).Str("source", source).Msg("refresh failed")
	})}
	if len(cfg.BurstOffsets) > 0 {
		opts = append(opts, syncer.WithBurstOffsets(cfg.BurstOffsets))
	}
	coordinator := syncer.New(bus, logger, opts...)

	err = coordinator.Register(syncer.Source{
		Name:     "requests",
		Interval: intervalOr(cfg.RequestsInterval, syncer.DefaultRequestsInterval),
		Topics:   []eventbus.Topic{eventbus.TopicRequestsUpdated},
		Burst:    true,
		Fetch: func(ctx context.Context) error {
			received, err := client.ListRequests(ctx, models.DirectionReceived)
			if err != nil {
				return err
			}
			sent, err := client.ListRequests(ctx, models.DirectionSent)
			if err != nil {
				return err
			}
			all := append(received, sent...)
			if changed(requests.Get(), all) {
				printRequests(logger, received, sent)
			}
			requests.Set(all)
			return nil
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("register requests source")
	}

	err = coordinator.Register(syncer.Source{
		Name:     "notifications",
		Interval: intervalOr(cfg.NotificationsInterval, syncer.DefaultNotificationsInterval),
		Topics:   []eventbus.Topic{eventbus.TopicRefreshNotifications},
		Fetch: func(ctx context.Context) error {
			unread, err := client.UnreadCount(ctx)
			if err != nil {
				return err
			}
			items, err := client.ListNotifications(ctx, feedLimit)
			if err != nil {
				return err
			}
			if notifications.Get().Unread != unread {
				logger.Info().Int("unread", unread).Msg("notifications")
				for _, n := range items {
					if !n.Read {
						logger.Info().Str("title", n.Title).Str("link", n.Link).Msg(n.Message)
					}
				}
			}
			notifications.Set(feed{Items: items, Unread: unread})
			return nil
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("register notifications source")
	}

	if *markRead {
		err := notifications.Mutate(ctx, func(f feed) feed {
			for i := range f.Items {
				f.Items[i].Read = true
			}
			f.Unread = 0
			return f
		}, func(ctx context.Context) error {
			_, err := client.MarkAllRead(ctx)
			return err
		})
		if err != nil {
			logger.Error().Err(err).Msg("mark all read failed")
		}
	}

	go streamEvents(ctx, client, bus, logger)

	// SIGHUP forces an immediate refetch of every source.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go refreshOnSignal(ctx, hup, coordinator.Refresh, "requests", "notifications")

	logger.Info().Str("api", cfg.APIURL).Msg("Watching requests and notifications")
	if err := coordinator.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("sync coordinator stopped")
	}
	logger.Info().Msg("Watch terminated.")
}

// refreshOnSignal refetches the named sources each time a signal arrives.
func refreshOnSignal(ctx context.Context, signals <-chan os.Signal, refresh func(string), sources ...string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			for _, name := range sources {
				refresh(name)
			}
		}
	}
}

// streamEvents keeps the push channel connected. Polling covers the gaps
// while it reconnects.
func streamEvents(ctx context.Context, client *apiclient.Client, bus eventbus.Bus, logger zerolog.Logger) {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := client.StreamEvents(ctx, bus)
		if ctx.Err() != nil {
			return nil
		}
		logger.Debug().Err(err).Msg("event stream disconnected, reconnecting")
		return retry.RetryableError(err)
	})
}

func intervalOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func changed(before, after []models.Request) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Status != after[i].Status || before[i].Version != after[i].Version {
			return true
		}
	}
	return false
}

func printRequests(logger zerolog.Logger, received, sent []models.Request) {
	for _, r := range received {
		logger.Info().Str("direction", "received").Str("id", r.ID).Str("status", string(r.Status)).Msg(r.Title)
	}
	for _, r := range sent {
		logger.Info().Str("direction", "sent").Str("id", r.ID).Str("status", string(r.Status)).Msg(r.Title)
	}
}
