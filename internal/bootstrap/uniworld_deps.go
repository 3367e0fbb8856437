package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"uniworld_server/adapter/out/mongodb"
	"uniworld_server/adapter/out/persistence"
	"uniworld_server/adapter/out/provider"
	"uniworld_server/config"
	"uniworld_server/core/port/out"
	"uniworld_server/core/service/auth"
	"uniworld_server/core/service/draft"
	"uniworld_server/core/service/mail"
	"uniworld_server/infra/database"
	"uniworld_server/pkg/crypto"
	"uniworld_server/pkg/logger"
)

// Dependencies wires every adapter and service the API needs.
type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client
	Mongo  *mongo.Database

	// Repositories
	CredentialRepo   out.CredentialRepository
	DispatchRepo     out.DispatchRepository
	DispatchBodyRepo out.DispatchBodyRepository
	StateStore       out.StateStore

	// Providers
	Providers *provider.Registry

	// Services
	OAuthService *auth.OAuthService
	SendService  *mail.SendService
	DraftService *draft.DraftService
}

// NewDependencies builds the dependency graph bottom-up.
func NewDependencies(cfg *config.Config, zlog zerolog.Logger) (*Dependencies, func(), error) {
	log := logger.Default()

	pool, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	// sqlx over the pgx stdlib driver shares the same database while
	// keeping struct-scan ergonomics for the adapters.
	sqlDB, err := sqlx.Connect("pgx", cfg.Database.URL)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	redisClient, err := database.NewRedis(cfg.Redis)
	if err != nil {
		pool.Close()
		sqlDB.Close()
		return nil, nil, err
	}

	mongoDB, err := database.NewMongo(cfg.Mongo)
	if err != nil {
		pool.Close()
		sqlDB.Close()
		redisClient.Close()
		return nil, nil, err
	}

	encryptor, err := crypto.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		pool.Close()
		sqlDB.Close()
		redisClient.Close()
		return nil, nil, err
	}

	// Repositories
	credentialRepo := persistence.NewCredentialAdapter(sqlDB, encryptor)
	dispatchRepo := persistence.NewDispatchAdapter(sqlDB)
	stateStore := persistence.NewRedisStateStore(redisClient)

	var dispatchBodyRepo out.DispatchBodyRepository
	if mongoDB != nil {
		bodyAdapter := mongodb.NewDispatchBodyAdapter(mongoDB)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := bodyAdapter.EnsureIndexes(ctx); err != nil {
			log.WithError(err).Warn("could not ensure mongodb indexes")
		}
		cancel()
		dispatchBodyRepo = bodyAdapter
	}

	// Providers
	gmailAdapter := provider.NewGmailAdapter(&provider.GmailConfig{
		ClientID:     cfg.OAuth.Gmail.ClientID,
		ClientSecret: cfg.OAuth.Gmail.ClientSecret,
		RedirectURL:  cfg.OAuth.Gmail.RedirectURL,
	}, log)
	outlookAdapter := provider.NewOutlookAdapter(&provider.OutlookConfig{
		ClientID:     cfg.OAuth.Outlook.ClientID,
		ClientSecret: cfg.OAuth.Outlook.ClientSecret,
		RedirectURL:  cfg.OAuth.Outlook.RedirectURL,
	}, log)
	registry := provider.NewRegistry(gmailAdapter, outlookAdapter)

	// Services
	oauthService := auth.NewOAuthService(registry, credentialRepo, stateStore,
		cfg.OAuth.StateTTL, cfg.OAuth.ExpiryLeeway, log)
	sendService := mail.NewSendService(oauthService, registry, dispatchRepo, dispatchBodyRepo, log)
	draftService := draft.NewDraftService(cfg.OpenAI.APIKey, cfg.OpenAI.Model, zlog)

	cleanup := func() {
		sqlDB.Close()
		pool.Close()
		redisClient.Close()
		if mongoDB != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = mongoDB.Client().Disconnect(ctx)
			cancel()
		}
	}

	return &Dependencies{
		Config:           cfg,
		DB:               pool,
		SQLDB:            sqlDB,
		Redis:            redisClient,
		Mongo:            mongoDB,
		CredentialRepo:   credentialRepo,
		DispatchRepo:     dispatchRepo,
		DispatchBodyRepo: dispatchBodyRepo,
		StateStore:       stateStore,
		Providers:        registry,
		OAuthService:     oauthService,
		SendService:      sendService,
		DraftService:     draftService,
	}, cleanup, nil
}
