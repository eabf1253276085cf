package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/commitments"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/config"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/loi"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/matchrequests"
)

// sweepSchedule runs the expiry sweep every ten minutes. Expiry is also
// evaluated lazily on read, so the sweep only needs to catch instruments
// nobody is looking at.
const sweepSchedule = "*/10 * * * *"

// ExpirySweeper flips overdue negotiation instruments to expired
type ExpirySweeper struct {
	matchRequests matchrequests.Repository
	lois          loi.Repository
	commitments   commitments.Repository
	logger        *zap.Logger
}

func NewExpirySweeper(db *gorm.DB, logger *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		matchRequests: matchrequests.NewRepository(db),
		lois:          loi.NewRepository(db),
		commitments:   commitments.NewRepository(db),
		logger:        logger,
	}
}

// Sweep runs one pass over all three instrument tables
func (s *ExpirySweeper) Sweep(ctx context.Context) {
	now := time.Now()

	type sweep struct {
		name string
		run  func(context.Context, time.Time) (int64, error)
	}
	for _, sw := range []sweep{
		{"match_requests", s.matchRequests.ExpireOverdue},
		{"lois", s.lois.ExpireOverdue},
		{"commitments", s.commitments.ExpireOverdue},
	} {
		count, err := sw.run(ctx, now)
		if err != nil {
			s.logger.Error("expiry sweep failed",
				zap.String("table", sw.name),
				zap.Error(err))
			continue
		}
		if count > 0 {
			s.logger.Info("expired overdue instruments",
				zap.String("table", sw.name),
				zap.Int64("count", count))
		}
	}
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	sweeper := NewExpirySweeper(db, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := cron.New()
	if _, err := c.AddFunc(sweepSchedule, func() { sweeper.Sweep(ctx) }); err != nil {
		logger.Fatal("Failed to schedule expiry sweep", zap.Error(err))
	}

	// run one pass at startup before settling into the schedule
	sweeper.Sweep(ctx)
	c.Start()
	logger.Info("Expiry worker running", zap.String("schedule", sweepSchedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Expiry worker shutting down")
	<-c.Stop().Done()
}
