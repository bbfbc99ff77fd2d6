// Package main is the entry point for the step sync daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stride-sync/internal/auth"
	"stride-sync/internal/config"
	"stride-sync/internal/health"
	"stride-sync/internal/model"
	"stride-sync/internal/notify"
	"stride-sync/internal/pkg/cache"
	"stride-sync/internal/pkg/db"
	"stride-sync/internal/repository"
	"stride-sync/internal/service"
	"stride-sync/internal/store"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := store.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	log.Info().Msg("Migrations completed")

	docs := store.NewPostgres(dbPool.Pool)

	// Optional Redis display cache
	levelCache := cache.New(ctx, &cfg.Redis)
	defer levelCache.Close()

	// Initialize repositories
	stepRepo := repository.NewStepRepository(docs)
	badgeRepo := repository.NewBadgeRepository(docs)
	bonusRepo := repository.NewBonusRepository(docs)
	protRepo := repository.NewProtectionRepository(docs)
	levelRepo := repository.NewLevelRepository(docs)

	// Authentication provider
	var authp auth.Provider
	if cfg.Auth.JWTSecret != "" {
		authp = auth.NewJWTProvider(cfg.Auth.JWTSecret)
		log.Info().Msg("Using JWT authentication provider")
	} else {
		authp = auth.StaticProvider{ID: cfg.Auth.ServiceUser}
		log.Info().Str("service_user", cfg.Auth.ServiceUser).Msg("Using static authentication provider")
	}

	// Notification dispatcher
	var dispatcher notify.Dispatcher = notify.Noop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(&cfg.Telegram)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create telegram dispatcher")
		}
		dispatcher = tg
		log.Info().Int("chat_mappings", len(cfg.Telegram.Chats)).Msg("Telegram dispatcher enabled")
	}

	// The health source behind the platform API is device-bound; the
	// daemon runs with the scripted source until a bridge feeds it.
	// TODO: replace with the device bridge source once its feed lands.
	source := health.NewStatic(time.Local)
	log.Warn().Msg("Using static health source")

	// Initialize services
	policy := service.PolicyFromConfig(&cfg.Anomaly)
	reconciler := service.NewStepReconciler(source, policy, time.Local)
	badgeAwarder := service.NewBadgeAwarder(badgeRepo, stepRepo, authp, service.RulesFromConfig(&cfg.Badges))
	syncEngine := service.NewSyncEngine(
		stepRepo,
		reconciler,
		badgeAwarder,
		authp,
		policy,
		cfg.Sync.WindowDays,
		cfg.Sync.QueryInterval,
		cfg.Sync.RepairCooldown,
		time.Local,
	)
	streakCalc := service.NewStreakCalculator(stepRepo, time.Local)
	levelEngine := service.NewLevelEngine(stepRepo, levelRepo, levelCache)
	bonusEngine := service.NewDailyBonusEngine(bonusRepo, authp, cfg.Bonus.MonthlyAllotment, time.Local)
	protEngine := service.NewProtectionEngine(
		protRepo,
		authp,
		cfg.Protection.MaxActive,
		cfg.Protection.CooldownDays,
		cfg.Protection.RefillDays,
		time.Local,
	)
	// New badges go straight out as notifications.
	unsubscribe := badgeAwarder.OnBadgeAcquired(func(ev model.BadgeEvent) {
		msg := fmt.Sprintf("New badge earned: %s", ev.Type)
		if err := dispatcher.Send(ctx, ev.UserID, msg); err != nil {
			log.Error().Err(err).Str("user_id", ev.UserID).Msg("Badge notification failed")
		}
	})
	defer unsubscribe()

	// A fresh today value means the lifetime total may have moved.
	syncEngine.OnSeriesUpdated(func(userID string, series []model.DailyStepRecord) {
		if _, err := levelEngine.Refresh(ctx, userID); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Level refresh failed")
		}
	})

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Sync.TickInterval)
	defer ticker.Stop()

	log.Info().
		Strs("users", cfg.Users.IDs).
		Dur("tick_interval", cfg.Sync.TickInterval).
		Msg("Sync daemon started")

	runTick(ctx, cfg, syncEngine, streakCalc, protEngine, bonusEngine, dispatcher)

	for {
		select {
		case <-ticker.C:
			runTick(ctx, cfg, syncEngine, streakCalc, protEngine, bonusEngine, dispatcher)
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
			log.Info().Msg("Sync daemon stopped gracefully")
			return
		}
	}
}

// runTick performs one maintenance pass over every configured user:
// protection refill, window sync, a streak-at-risk reminder when today is
// still inactive while yesterday anchors a streak, and a claimable-bonus
// reminder.
func runTick(
	ctx context.Context,
	cfg *config.Config,
	syncEngine *service.SyncEngine,
	streakCalc *service.StreakCalculator,
	protEngine *service.ProtectionEngine,
	bonusEngine *service.DailyBonusEngine,
	dispatcher notify.Dispatcher,
) {
	for _, userID := range cfg.Users.IDs {
		if err := protEngine.CheckAndRefill(ctx, userID); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Protection refill check failed")
		}

		if err := syncEngine.SyncWindow(ctx, userID); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Window sync reported failures")
		}

		streak, err := streakCalc.ComputeStreak(ctx, userID, cfg.Goal.DailySteps)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Streak computation failed")
			continue
		}
		if !streak.IsActiveToday && streak.CurrentStreak > 0 {
			msg := fmt.Sprintf("Your %d-day streak is at risk - get moving before midnight!", streak.CurrentStreak)
			if err := dispatcher.Send(ctx, userID, msg); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Streak reminder failed")
			}
		}

		state, err := bonusEngine.State(ctx, userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Bonus state check failed")
			continue
		}
		if state == service.StateClaimable || state == service.StateNeverClaimed {
			if err := dispatcher.Send(ctx, userID, "Your daily bonus is ready to claim!"); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Bonus reminder failed")
			}
		}
	}
}
