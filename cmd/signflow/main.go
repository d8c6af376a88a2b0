package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MasumNishat/signing-sub000/internal/cli"
	internal_http "github.com/MasumNishat/signing-sub000/internal/http"
	"github.com/MasumNishat/signing-sub000/internal/log"
	"github.com/MasumNishat/signing-sub000/internal/scheduler"
	internal_storage "github.com/MasumNishat/signing-sub000/internal/storage"
	"github.com/MasumNishat/signing-sub000/pkg/service"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "signflow"}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the envelope workflow API server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			log.GetLogger().Debugf("No .env file found: %v", err)
		}
		port, _ := cmd.Flags().GetString("port")
		connStr, _ := cmd.Flags().GetString("db")
		if connStr == "" {
			connStr = connStrFromEnv()
		}
		store, err := internal_storage.InitStore(connStr)
		if err != nil {
			log.GetLogger().Errorf("Failed to initialize store: %v", err)
			os.Exit(1)
		}
		defer store.Close()

		// One engine for both surfaces: scheduler-fired starts notify the
		// activated tier through the same pool the HTTP path uses.
		notifier := service.NewNotifierPool(context.Background(), log.GetLogger())
		notifier.Start(0)
		defer notifier.Stop()
		wfSvc := service.NewWorkflowService(store, log.GetLogger(), service.WithNotifier(notifier))
		envSvc := service.NewEnvelopeService(store, log.GetLogger())

		if enabled, _ := cmd.Flags().GetBool("scheduler"); enabled {
			spec, _ := cmd.Flags().GetString("scheduler-interval")
			sched := scheduler.NewScheduler(store, wfSvc, log.GetLogger(), spec)
			if err := sched.Start(); err != nil {
				log.GetLogger().Errorf("Failed to start scheduler: %v", err)
				os.Exit(1)
			}
			defer sched.Stop()
		}

		if err := internal_http.StartServer(port, wfSvc, envSvc); err != nil {
			log.GetLogger().Errorf("Server stopped: %v", err)
			os.Exit(1)
		}
	},
}

func connStrFromEnv() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USERNAME"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_NAME"))
}

func main() {
	serveCmd.Flags().String("port", "8080", "HTTP listen port")
	serveCmd.Flags().String("db", "", "Database connection string (falls back to DB_* env vars)")
	serveCmd.Flags().Bool("scheduler", true, "Run the scheduled-sending loop in-process")
	serveCmd.Flags().String("scheduler-interval", "@every 30s", "Cron spec for the scheduled-sending loop")
	rootCmd.AddCommand(serveCmd)
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
