package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/alerter"
	"github.com/stormguard/stormguard/internal/announce"
	"github.com/stormguard/stormguard/internal/api"
	"github.com/stormguard/stormguard/internal/assistant"
	"github.com/stormguard/stormguard/internal/chat"
	"github.com/stormguard/stormguard/internal/commands"
	"github.com/stormguard/stormguard/internal/config"
	"github.com/stormguard/stormguard/internal/metrics"
	"github.com/stormguard/stormguard/internal/notifier"
	"github.com/stormguard/stormguard/internal/panel"
	"github.com/stormguard/stormguard/internal/store"
	"github.com/stormguard/stormguard/internal/types"
	"github.com/stormguard/stormguard/internal/version"
	"github.com/stormguard/stormguard/internal/weather"
	"github.com/stormguard/stormguard/internal/webui"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configPath := flag.String("config", "/config/stormguard.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Log buffer for /api/logs (last 1000 entries)
	logBuffer := webui.NewLogBuffer(1000)

	logLevelParsed, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logLevelParsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevelParsed)

	newLogger := func(w io.Writer) zerolog.Logger {
		return zerolog.New(w).With().
			Timestamp().
			Str("version", version.Version).
			Str("commit", version.Commit).
			Logger()
	}
	logger := newLogger(io.MultiWriter(os.Stdout, logBuffer))

	logger.Info().Str("build", version.Get().String()).Msg("Starting StormGuard")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_path", *configPath).
			Msg("Failed to load configuration")
	}

	if cfg.Global.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Global.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		defer rotator.Close()
		logger = newLogger(io.MultiWriter(os.Stdout, logBuffer, rotator))
	}

	logger.Info().
		Int("entity_count", len(cfg.Entities)).
		Dur("poll_interval", cfg.Global.PollInterval).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := store.Open(cfg.Global.StatePath, cfg.Entities, logger)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("state_path", cfg.Global.StatePath).
			Msg("Failed to open state file")
	}

	// Notification transports
	var transports []notifier.Transport
	chatAdapter := chat.NewTelegram(logger, nil)
	var tgBot *bot.Bot
	if token := os.Getenv(cfg.Telegram.TokenEnv); token != "" {
		tgBot = connectTelegram(ctx, token, chatAdapter, logger)
		if tgBot != nil {
			transports = append(transports, notifier.NewTelegram(tgBot, cfg.Telegram.RatePerSecond, logger))
		}
	} else {
		logger.Warn().Str("env", cfg.Telegram.TokenEnv).Msg("Telegram token not set, chat commands disabled")
	}
	transports = append(transports, notifier.NewApprise(os.Getenv(cfg.Apprise.APIURLEnv), cfg.Apprise.Timeout, logger))
	router := notifier.NewRouter("tg", transports...)

	panelClient := panel.NewClient(cfg.Panel.BaseURL, os.Getenv(cfg.Panel.APIKeyEnv), cfg.Panel.Timeout, logger)

	terminal := func(ctx context.Context, entityID string, alert types.Alert) error {
		ent := st.Get(entityID)
		if len(ent.Servers) == 0 {
			logger.Warn().
				Str("entity", entityID).
				Str("event", alert.EventType).
				Msg("Shutdown triggered, no panel servers configured")
			return nil
		}
		return panelClient.StopAll(ctx, ent.Servers)
	}

	sequencer := alerter.NewSequencer(logger, st, router, router, terminal, m, alerter.SequencerOptions{
		Rounds:        cfg.Countdown.Rounds,
		RoundInterval: cfg.Countdown.RoundInterval,
		Cooldown:      cfg.Countdown.Cooldown,
	})

	source := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.UserAgent, cfg.Weather.Timeout, m, logger)
	poller := alerter.NewPoller(logger, source, st, sequencer, m, cfg.Global.PollInterval)

	var completer assistant.Completer
	if cfg.LLM.Enabled {
		c, err := assistant.NewOpenAI(os.Getenv(cfg.LLM.APIKeyEnv), cfg.LLM.BaseURL, cfg.LLM.Model)
		if err != nil {
			logger.Warn().Err(err).Msg("Language model disabled")
		} else {
			completer = c
		}
	}
	asst := assistant.New(logger, st, st, panelClient, cfg.Roles, completer, assistant.Options{
		Persona:          cfg.LLM.Persona,
		ClassifyFallback: cfg.LLM.ClassifyFallback,
	}, m)

	board := announce.NewBoard(announce.Announcement{
		Username: cfg.Announcements.DefaultUsername,
		Avatar:   cfg.Announcements.DefaultAvatar,
		Message:  cfg.Announcements.DefaultMessage,
	}, logger)

	handler := commands.NewHandler(logger, st, sequencer, poller, asst, board, router)
	chatAdapter.SetHandler(handler)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	if tgBot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Msg("Telegram update loop started")
			tgBot.Start(ctx)
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	apiServer := api.NewServer(board, logger, cfg.Global.APIPort)
	apiServer.SetLogBuffer(logBuffer)
	apiServer.SetSequences(sequencer)
	apiServer.SetEntities(st)
	apiServer.SetReloader(st)
	apiServer.SetConfig(cfg, *configPath)
	apiServer.SetGatherer(reg)
	apiServer.SetVersion(version.Get())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(ctx); err != nil {
			logger.Error().
				Err(err).
				Msg("API server error")
		}
	}()

	logger.Info().Str("port", cfg.Global.APIPort).Msg("StormGuard running, press Ctrl+C to stop")

	<-ctx.Done()
	stop()
	logger.Info().Msg("Shutting down...")

	sequencer.Stop()
	board.Close()
	wg.Wait()
	sequencer.Wait()

	logger.Info().Msg("StormGuard stopped")
}

// connectTelegram creates the bot, retrying with backoff while the Bot API is unreachable.
// It returns nil only when ctx is cancelled first.
func connectTelegram(ctx context.Context, token string, adapter *chat.Telegram, logger zerolog.Logger) *bot.Bot {
	reconnectDelay := 5 * time.Second
	const maxReconnectDelay = 120 * time.Second

	for {
		b, err := bot.New(token, bot.WithDefaultHandler(adapter.HandleUpdate))
		if err == nil {
			logger.Info().Msg("Connected to Telegram")
			return b
		}

		logger.Error().
			Err(err).
			Dur("retry_in", reconnectDelay).
			Msg("Failed to connect to Telegram, will retry")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}

		reconnectDelay *= 2
		if reconnectDelay > maxReconnectDelay {
			reconnectDelay = maxReconnectDelay
		}
	}
}
