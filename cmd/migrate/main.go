package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/transfer-market/internal/config"
	"github.com/cuongbtq/transfer-market/internal/migrations"
	"github.com/cuongbtq/transfer-market/shared/logger"
	"github.com/cuongbtq/transfer-market/shared/postgresql"
	"github.com/joho/godotenv"
)

const usage = `usage: migrate [-config path] <command> [args]

commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	timeout := flag.Duration("timeout", 5*time.Minute, "Maximum time for the command")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return fmt.Errorf("missing migration command")
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("nothing to migrate for the memory database driver")
	}

	appLogger, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	appLogger.Info("Running migration", slog.String("command", command), slog.Any("args", args))
	if err := migrations.Run(ctx, dbClient.GetDB().DB, command, args...); err != nil {
		return err
	}
	appLogger.Info("Migration finished", slog.String("command", command))
	return nil
}
