package bootstrap

import (
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	apihttp "uniworld_server/adapter/in/http"
	"uniworld_server/config"
	"uniworld_server/infra/middleware"
	"uniworld_server/pkg/logger"
)

// NewAPI assembles the Fiber application.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.ParseLevel(cfg.App.LogLevel)
	if cfg.IsDevelopment() && logLevel > logger.LevelDebug {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "uniworld-api",
	})

	zlog := zerolog.New(os.Stdout).With().Timestamp().Str("service", "uniworld-api").Logger()

	deps, cleanup, err := NewDependencies(cfg, zlog)
	if err != nil {
		logger.WithError(err).Error("failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json is measurably faster than encoding/json for our
		// payload sizes.
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 4 * 1024 * 1024,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS: credentials require explicit origins, never "*".
	allowOrigins := strings.Join(cfg.App.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
	}))

	// Public routes: health plus the provider callback, which arrives
	// without a bearer token.
	healthHandler := apihttp.NewHealthHandler(deps.DB, deps.Redis)
	healthHandler.Register(app)

	oauthHandler := apihttp.NewOAuthHandler(deps.OAuthService, cfg.App.FrontendURL)
	mailHandler := apihttp.NewMailHandler(deps.SendService)
	draftHandler := apihttp.NewDraftHandler(deps.DraftService)

	api := app.Group("/api/v1", middleware.JWTAuth(cfg.JWT.Secret))
	oauthHandler.Register(api, app)
	mailHandler.Register(api)
	draftHandler.Register(api)

	return app, cleanup, nil
}
