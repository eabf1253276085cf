package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/audit"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/auth"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/capitalstack"
	stackexport "nmtc-connect/deal-portal/deal-portal-backend/internal/capitalstack/export"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/commitments"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/config"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/deals"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/loi"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/matchrequests"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/notifications"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/notifications/ws"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/orgs"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&orgs.Organization{},
		&orgs.SponsorProfile{},
		&orgs.CDEProfile{},
		&orgs.InvestorProfile{},
		&deals.Deal{},
		&matchrequests.MatchRequest{},
		&loi.LetterOfIntent{},
		&commitments.Commitment{},
		&audit.Event{},
	); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	resolver := orgs.NewCachingResolver(orgs.NewResolver(db), cfg.Workflow.OrgCacheTTL)
	directory := orgs.NewDirectory(db)
	hub := ws.NewHub(logger)

	notifier := buildNotifier(cfg, hub, directory, logger)
	auditService := audit.NewService(db, logger)

	matchService := matchrequests.NewService(
		matchrequests.NewRepository(db),
		auditService,
		notifier,
		matchrequests.SlotConfig{
			Limit:           cfg.Workflow.MatchRequestSlotLimit,
			DeclineCooldown: cfg.Workflow.DeclineCooldown,
			Expiry:          cfg.Workflow.MatchRequestExpiry,
		},
		logger,
	)

	loiRepo := loi.NewRepository(db)
	loiService := loi.NewService(loiRepo, resolver, auditService, notifier, cfg.Workflow.LOIExpiry, logger)

	commitmentRepo := commitments.NewRepository(db)
	commitmentService := commitments.NewService(commitmentRepo, resolver, auditService, notifier, cfg.Workflow.CommitmentExpiry, logger)

	stackService := capitalstack.NewService(deals.NewRegistry(db), loiRepo, commitmentRepo, resolver, directory, logger)

	r := gin.Default()
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API alive!"})
	})

	api := r.Group("/api/v1")
	api.Use(auth.Middleware(cfg.Security.JWTSecret))

	auth.RegisterRoutes(api.Group("/auth"))
	matchrequests.NewHandler(matchService).RegisterRoutes(api.Group("/match-requests"))
	loi.NewHandler(loiService).RegisterRoutes(api.Group("/lois"))
	commitments.NewHandler(commitmentService).RegisterRoutes(api.Group("/commitments"))
	capitalstack.NewHandler(stackService, stackexport.NewExcelRenderer(), stackexport.NewPDFRenderer()).RegisterRoutes(api.Group("/deals"))
	audit.NewHandler(auditService).RegisterRoutes(api.Group("/audit"))

	api.GET("/ws", func(c *gin.Context) {
		actor, err := auth.ActorFromContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if _, err := hub.HandleConnection(c.Writer, c.Request, actor.OrgID); err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
		}
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Server running", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	return db, nil
}

// buildNotifier assembles the outbound channels. Email and SNS are
// optional; the websocket push always runs.
func buildNotifier(cfg *config.Config, hub *ws.Hub, directory orgs.Directory, logger *zap.Logger) notifications.Emitter {
	if cfg.Notifications.Disabled {
		return notifications.NopEmitter{}
	}

	var channels []notifications.Channel

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Notifications.AWSRegion))
	if err != nil {
		logger.Warn("AWS config unavailable, email and topic channels disabled", zap.Error(err))
	} else {
		channels = append(channels, notifications.NewEmailChannel(
			sesv2.NewFromConfig(awsCfg),
			directory,
			cfg.Notifications.FromAddress,
			cfg.Notifications.FromName,
		))
		if cfg.Notifications.SNSTopicARN != "" {
			channels = append(channels, notifications.NewTopicChannel(
				sns.NewFromConfig(awsCfg),
				cfg.Notifications.SNSTopicARN,
			))
		}
	}

	return notifications.NewService(hub, logger, channels...)
}
