package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetsolis-client/config"
	"meetsolis-client/internal/api"
	"meetsolis-client/internal/auth"
	"meetsolis-client/internal/call"
	"meetsolis-client/internal/handlers"
	"meetsolis-client/internal/layout"
	"meetsolis-client/internal/media"
	"meetsolis-client/internal/media/platform"
	"meetsolis-client/internal/realtime"
	"meetsolis-client/internal/roster"
	"meetsolis-client/internal/store"
	"meetsolis-client/internal/transport/mesh"
	"meetsolis-client/internal/transport/sfu"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// @title           MeetSolis Client Control API
// @version         1.0
// @description     Local control surface for the MeetSolis call client.

// @host      127.0.0.1:8091
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter the token with the `Bearer ` prefix, e.g. "Bearer abcde12345"

func init() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logLevel, err := zerolog.ParseLevel(cfg.Logger.Level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	output := os.Stdout
	if cfg.Logger.OutputPath != "" {
		file, err := os.OpenFile(cfg.Logger.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			output = file
		}
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	})
}

func main() {
	meetingID := flag.String("meeting", "", "meeting id to join")
	useMesh := flag.Bool("mesh", false, "use the legacy peer-to-peer transport")
	flag.Parse()

	if *meetingID == "" {
		log.Fatal().Msg("A meeting id is required (-meeting)")
	}

	cfg := config.Get()

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state database")
	}
	defer db.Close()

	backend := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.AuthToken,
		time.Duration(cfg.Backend.RequestTimeout)*time.Second)
	rt := realtime.NewClient(cfg.Realtime.URL, *meetingID)

	layoutStore := layout.NewStore(db)
	provider := platform.NewProvider(cfg.Media)
	devices := media.NewDeviceRegistry(provider, db)
	local := media.NewLocalController(provider, cfg.Media)
	levels := media.NewLevelMonitor(platform.NewAnalyser)

	connect := func(ctx context.Context, host, token string) (roster.ParticipantSource, error) {
		if *useMesh {
			claims, err := auth.ParseCallToken(token)
			if err != nil {
				return nil, err
			}
			return mesh.Join(ctx, rt, claims.Identity(), claims.Name, nil)
		}
		return sfu.Connect(host, token)
	}

	engine := call.New(call.Options{
		Config:      cfg,
		Backend:     backend,
		MeetingID:   *meetingID,
		Connect:     connect,
		LayoutStore: layoutStore,
		Devices:     devices,
		Local:       local,
		Levels:      levels,
		Realtime:    rt,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Realtime channel unavailable, polling only")
	}

	if err := engine.Join(ctx); err != nil {
		if errors.Is(err, call.ErrWaiting) {
			log.Info().Msg("Waiting for the host to admit you")
		} else {
			log.Fatal().Err(err).Msg("Failed to join meeting")
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "MeetSolis Client",
		ReadTimeout:  time.Duration(cfg.Control.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Control.WriteTimeout) * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Error().Err(err).
				Str("path", c.Path()).
				Msg("Error handling request")

			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:5173,http://127.0.0.1:5173",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handlers.Register(app, handlers.NewControlHandler(engine), cfg.Control.AuthToken)

	serverAddr := cfg.Control.Host + ":" + cfg.Control.Port
	go func() {
		if err := app.Listen(serverAddr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start control API")
		}
	}()
	log.Info().Str("addr", serverAddr).Msg("Control API listening")

	engine.OnEnded(stop)
	<-ctx.Done()

	log.Info().Msg("Shutting down")
	engine.Leave()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("Control API shutdown failed")
	}
}
