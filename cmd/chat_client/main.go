package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realtime_chat_client/internal/chat/app"
	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/internal/chat/repository"
	"realtime_chat_client/internal/chat/router"
	"realtime_chat_client/pkg/config"
	"realtime_chat_client/pkg/database"
	errprocess "realtime_chat_client/pkg/err"
	"realtime_chat_client/pkg/logger"
	testtool "realtime_chat_client/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "chat_client",
		Short:        "Realtime chat sync client",
		Long:         "chat_client keeps a phoenix socket, channel joins, message windows, typing and presence in sync for one user.",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd(), buildVersionCmd())
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func buildRunCmd() *cobra.Command {
	var (
		rooms      []string
		configName string
		configPath string
		logPath    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, join rooms and serve the inspect api",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configName, configPath, logPath, rooms)
		},
	}
	cmd.Flags().StringSliceVar(&rooms, "room", nil, "room id to open on start (repeatable)")
	cmd.Flags().StringVar(&configName, "config", config.EnvConfig.ChatClient, "yaml config name")
	cmd.Flags().StringVar(&configPath, "config-path", config.EnvConfig.ChatClientYAMLPath, "yaml config dir")
	cmd.Flags().StringVar(&logPath, "log-path", config.EnvConfig.ChatClientLogPath, "log dir")
	return cmd
}

func run(parent context.Context, configName, configPath, logPath string, rooms []string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. logger / config
	logger.Log = logger.Initialize(configName, logPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Client](configName, configPath)
	cfg.Defaults()
	if config.IsLocal() {
		logger.Log.SetDebugMode(true)
	}
	testtool.StartPprof()

	// 2. Redis (token 來源 / view 廣播), 可選
	var redisClient *redis.Client
	if cfg.Redis.Enabled || cfg.Auth.TokenSource == "redis" {
		var err error
		if cfg.Redis.Mode == "sentinel" {
			masterName, sentinelAddrs := config.GetRedisSetting()
			redisClient, err = database.NewRedisClient(masterName, sentinelAddrs, cfg.Redis.RedisDB)
		} else {
			redisClient, err = database.NewRedisStandalone(ctx, database.RedisConnection{
				Addr:          cfg.Redis.Addr,
				DB:            cfg.Redis.RedisDB,
				RetryCount:    cfg.Redis.RetryCount,
				RetryInterval: cfg.Redis.RetryInterval,
			})
		}
		if err != nil {
			logger.Log.Fatal("Unable to connect to redis after retries", zap.String("mode", cfg.Redis.Mode), zap.String("address", cfg.Redis.Addr), zap.Error(err))
		}
		defer redisClient.Close()
	}

	var tokens repository.TokenStore
	switch cfg.Auth.TokenSource {
	case "redis":
		tokens = repository.NewRedisTokenStore(database.NewRedisRepository[domain.AuthSession](redisClient), cfg.Auth.RedisKey)
	default:
		tokens = repository.NewStaticTokenStore(config.EnvConfig.AuthToken)
	}

	// 3. 初始化 Repository
	gql := repository.NewGraphQLClient(cfg.Endpoint.GraphQL, tokens, cfg.Messages.FetchTimeout)
	msgRepo := repository.NewGraphQLMessageRepository(gql)
	userRepo := repository.NewGraphQLUserRepository(gql)
	chatRepo := repository.NewGraphQLChatRepository(gql)

	// 4. 初始化同步層
	conn := app.NewConnectionManager(
		repository.NewPhoenixDialer(cfg.Reconnect.DialTimeout),
		cfg.Endpoint.Socket,
		app.ReconnectPolicy{BaseDelay: cfg.Reconnect.BaseDelay, MaxAttempts: cfg.Reconnect.MaxAttempts},
		cfg.Channel.HeartbeatInterval,
		app.SystemClock,
	)
	presence := app.NewPresenceTracker(cfg.Presence.Debounce, app.SystemClock)
	client := app.NewSyncClient(app.SyncConfig{
		PageSize:      cfg.Messages.PageSize,
		TypingTimeout: cfg.Typing.Timeout,
		TypingSweep:   cfg.Typing.SweepInterval,
		TypingIdle:    cfg.Typing.IdleStop,
		JoinTimeout:   cfg.Channel.JoinTimeout,
	}, conn, tokens, userRepo, msgRepo, presence, app.SystemClock)
	client.SetChatRepository(chatRepo)

	if redisClient != nil && cfg.Redis.PublishViews {
		client.SetPublisher(repository.NewRedisPubSub(redisClient))
	}

	// 5. 網路偵測
	probe, err := repository.NewNetworkProbe(cfg.Endpoint.Socket, cfg.Network.ProbeInterval, cfg.Network.ProbeTimeout)
	if err != nil {
		logger.Log.Warn("network probe disabled", zap.Error(err))
	} else {
		go probe.Run(ctx, func(online bool) {
			logger.Log.Info("network reachability changed", zap.Bool("online", online))
			conn.SetNetworkOnline(online)
		})
	}

	if err := client.Start(ctx); err != nil {
		return errprocess.Wrap("start sync client", err)
	}
	defer client.Stop()

	for _, roomID := range rooms {
		if _, err := client.OpenRoom(ctx, roomID); err != nil {
			logger.Log.Error("open room failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}

	if !cfg.Inspect.Enabled {
		<-ctx.Done()
		logger.Log.Info("shutting down")
		return nil
	}

	// 6. 啟動 Fiber inspect api
	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", logPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return errprocess.Wrap("open access log", err, zap.String("path", logPath))
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))
	router.RegisterRoutes(r, app.NewInspectHandler(client), cfg.Inspect.Token)

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down inspect api")
		if err := r.ShutdownWithTimeout(5 * time.Second); err != nil {
			logger.Log.Errorf("inspect shutdown:", err)
		}
	}()

	addr := "127.0.0.1:" + cfg.Inspect.Port
	logger.Log.Info("inspect api listening", zap.String("addr", addr))
	if err := r.Listen(addr); err != nil {
		return errprocess.Wrap("inspect api", err, zap.String("addr", addr))
	}
	return nil
}
