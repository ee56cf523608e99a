package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/cmd/utils/internal/commands"
)

const (
	appName    = "stand-utils"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := apt.LoadConfig("UTILS", os.Args[2:])
	if err != nil {
		stdlog.Fatalf("Cannot load config: %v", err)
	}
	logger := apt.NewLogger(cfg.GetStringOrDef("log.level", "info"))

	ctx := context.Background()
	command := os.Args[1]

	switch command {
	case "seed-demo":
		if err := commands.SeedDemo(ctx, cfg, logger); err != nil {
			stdlog.Fatalf("Demo seeding failed: %v", err)
		}
		logger.Info("Demo seeding completed successfully")

	case "reconcile":
		report, err := commands.Reconcile(ctx, cfg, logger)
		if err != nil {
			stdlog.Fatalf("Reconcile failed: %v", err)
		}
		for _, id := range report.Stray {
			fmt.Printf("stray specialty record: %s\n", id)
		}

	case "reset-db":
		if err := commands.ResetDB(ctx, cfg, logger); err != nil {
			stdlog.Fatalf("Database reset failed: %v", err)
		}
		logger.Info("Database reset completed successfully")

	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - stand utility commands

Usage:
  %s <command> [options]

Commands:
  seed-demo    Store the demo menu and demo orders (skips seeds already applied)
  reconcile    Recreate missing specialty records and heal disagreeing done flags
  reset-db     Drop the menu, orders, specialty and seed collections (USE WITH CAUTION)
  version      Print version information
  help         Show this help message

Environment Variables:
  UTILS_DB_MONGO_URL    MongoDB connection URL (default: mongodb://localhost:27017)
  UTILS_DB_MONGO_NAME   Database name (default: stand)
  UTILS_NATS_URL        NATS URL used to notify running stand services (empty disables)
  UTILS_LOG_LEVEL       Log level: debug, info, error (default: info)

Examples:
  %s seed-demo
  %s reconcile
  UTILS_DB_MONGO_URL=mongodb://localhost:27017 %s reset-db

`, appName, appName, appName, appName, appName)
}
