package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/unsplash-client/pkg/client"
	"github.com/Sternrassler/unsplash-client/pkg/config"
	"github.com/Sternrassler/unsplash-client/pkg/favorites"
	"github.com/Sternrassler/unsplash-client/pkg/logging"
)

const serviceName = "unsplash-proxy"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Unsplash search client with a deduplicating image cache",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("config", "", "config file (default ./unsplash.{yaml,toml,json})")
	root.PersistentFlags().String("env-file", "", "dotenv file (default ./.env)")
	root.PersistentFlags().String("log-level", "", "log level override: debug, info, warn, error")
	root.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")

	root.AddCommand(newServeCmd(), newSearchCmd())
	return root
}

// loadConfig reads configuration, applies flag overrides and sets up logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(config.Options{ConfigFile: configFile, EnvFile: envFile})
	if err != nil {
		return config.Config{}, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if pretty, _ := cmd.Flags().GetBool("log-pretty"); pretty {
		cfg.Log.Pretty = true
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, err
	}
	logging.Setup(logging.Config{
		Level:   level,
		Pretty:  cfg.Log.Pretty,
		Output:  cmd.ErrOrStderr(),
		Service: serviceName,
	})

	return cfg, nil
}

// newClient builds the Unsplash client from configuration.
func newClient(cfg config.Config) (*client.Client, error) {
	if err := cfg.RequireAccessKey(); err != nil {
		return nil, err
	}

	ccfg := client.DefaultConfig(cfg.API.AccessKey, cfg.API.UserAgent)
	ccfg.BaseURL = cfg.API.BaseURL
	ccfg.MinRequestInterval = cfg.API.MinRequestInterval
	ccfg.QuotaWindow = cfg.API.QuotaWindow
	ccfg.Timeout = cfg.API.Timeout
	ccfg.ImageCacheEntries = cfg.Cache.MaxEntries
	ccfg.ImageCacheBytes = cfg.Cache.MaxBytes
	ccfg.ImageHosts = cfg.Cache.ImageHosts
	ccfg.MaxImageBytes = cfg.Cache.MaxImageBytes

	c, err := client.New(ccfg)
	if err != nil {
		return nil, fmt.Errorf("create unsplash client: %w", err)
	}
	return c, nil
}

// newRedis connects to Redis when an address is configured. It returns nil
// without error when Redis is not configured.
func newRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	return rdb, nil
}

// openFavorites opens the favorites store on Redis, or in memory when rdb is nil.
func openFavorites(ctx context.Context, cfg config.Config, rdb *redis.Client) (*favorites.Store, error) {
	var backend favorites.Backend
	if rdb != nil {
		backend = favorites.NewRedisBackend(rdb, cfg.Favorites.RedisKey)
	} else {
		log.Warn().Msg("Redis not configured - favorites are kept in memory only")
		backend = favorites.NewMemoryBackend()
	}
	return favorites.Open(ctx, backend, favorites.Options{SaveDelay: cfg.Favorites.SaveDelay})
}
