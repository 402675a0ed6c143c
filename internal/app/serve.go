package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "postmark-backend/cmd/api"
	"postmark-backend/internal/mailbox/scheduler"
	"postmark-backend/internal/notification"
	"postmark-backend/pkg/fcm"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Validates the schema, then serves the API with the optional push listener and sync scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openValidatedDatabase()
		if err != nil {
			return err
		}
		s := buildServices(db)

		if cfg.GoogleProjectID != "" {
			startNotifications(ctx, s)
		} else {
			log.Info("GOOGLE_PROJECT_ID not configured, push notifications disabled")
		}

		sched := scheduler.NewSyncScheduler(s.connections, s.mailbox, cfg.Sync.Interval)
		sched.Start(ctx)
		defer sched.Stop()

		handler := api.NewHandler(s.auth, s.mailbox, s.accounts, cfg)
		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler.Engine(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errChan := make(chan error, 1)
		go func() {
			log.WithField("port", cfg.Port).Info("server starting")
			errChan <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			log.Info("shutting down gracefully")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return nil
		case err := <-errChan:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server failed: %w", err)
		}
	},
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP port")
	bindFlag("PORT", serveCmd.Flags().Lookup("port"))
}

func startNotifications(ctx context.Context, s *services) {
	var pusher notification.Pusher
	if cfg.FirebaseCredentials != "" {
		client, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.WithError(err).Warn("failed to initialize FCM client, device pushes disabled")
		} else {
			pusher = client
		}
	}

	notifService, err := notification.NewService(ctx, cfg.GoogleProjectID, cfg.PubSubTopicName(), cfg.GoogleCredentials, cfg.FrontendURL, s.connections, s.devices, pusher, s.mailbox)
	if err != nil {
		log.WithError(err).Error("failed to initialize notification service")
		return
	}

	go func() {
		defer notifService.Close()
		if err := notifService.Start(ctx); err != nil {
			log.WithError(err).Error("notification listener exited")
		}
	}()
}
