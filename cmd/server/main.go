/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the clinic billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve            Run the HTTP server (default)
  create-admin     Register an admin account, print its activation key
  reset-password   Force-set an account password and unlock it
  send-reminders   One-shot overdue-invoice reminder scan

STARTUP SEQUENCE (serve):
  1. Resolve configuration (defaults, then environment)
  2. Initialize SQLite store
  3. Start the notification queue and reminder scheduler
  4. Configure HTTP router
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, drain the notification queue
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/clinic.db

  # Run on different port
  ./server serve --port=3000

  # Bootstrap the first admin
  ./server create-admin --email=admin@example.com

ENVIRONMENT:
  ORG_NAME, ORG_ADDRESS, ORG_EMAIL, PAYMENT_EMAIL, INVOICE_PREFIX,
  INVOICE_DUE_DAYS, TOKEN_SECRET, TOKEN_TTL, REMINDER_INTERVAL

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clearbrook/clinic-engine/api"
	"github.com/clearbrook/clinic-engine/auth"
	"github.com/clearbrook/clinic-engine/billing"
	"github.com/clearbrook/clinic-engine/config"
	"github.com/clearbrook/clinic-engine/notify"
	"github.com/clearbrook/clinic-engine/store/sqlite"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "Clinic billing and compensation engine",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "clinic.db", "SQLite database path")

	root.AddCommand(serveCmd(), createAdminCmd(), resetPasswordCmd(), sendRemindersCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore() (*sqlite.Store, error) {
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			queue := notify.NewQueue(notify.LogSender{}, cfg.OrgName)
			queue.Start()
			defer queue.Stop()

			handler := api.NewHandler(store, cfg, queue)
			router := api.NewRouter(handler)

			scheduler := api.NewReminderScheduler(store, queue)
			scheduler.CheckInterval = cfg.ReminderInterval
			scheduler.Start()
			defer scheduler.Stop()

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", port),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				log.Printf("Server starting on http://localhost:%d", port)
				log.Printf("API available at http://localhost:%d/api", port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Server failed: %v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Println("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			log.Println("Server stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	return cmd
}

func createAdminCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Register an admin account and print its activation key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			existing, err := store.GetAccount(ctx, email)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("account %s already exists", email)
			}

			acct := auth.Account{
				Email:          email,
				Role:           "admin",
				ActivationKey:  uuid.NewString(),
				FailedAttempts: auth.AttemptCeiling,
			}
			if err := store.SaveAccount(ctx, acct); err != nil {
				return err
			}

			fmt.Printf("Admin account created: %s\n", email)
			fmt.Printf("Activation key: %s\n", acct.ActivationKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Admin email address")
	return cmd
}

func resetPasswordCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Force-set an account password and unlock it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || len(password) < 8 {
				return errors.New("--email and a --password of at least 8 characters are required")
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			cfg := config.FromEnv()
			svc := auth.NewService(store, []byte(cfg.TokenSecret), cfg.TokenTTL)
			if err := svc.ResetPassword(context.Background(), email, password); err != nil {
				return err
			}

			fmt.Printf("Password reset for %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email address")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	return cmd
}

func sendRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-reminders",
		Short: "Queue reminders for overdue invoices and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			queue := notify.NewQueue(notify.LogSender{}, cfg.OrgName)
			queue.Start()
			defer queue.Stop()

			ctx := context.Background()
			overdue, err := store.ListInvoicesDue(ctx, billing.StatusSent, time.Now())
			if err != nil {
				return err
			}

			sent := 0
			for _, inv := range overdue {
				client, err := store.GetClient(ctx, inv.ClientID)
				if err != nil {
					return err
				}
				if client == nil || client.GuardianEmail == "" {
					continue
				}
				queue.InvoiceReminder(inv, *client)
				sent++
			}

			fmt.Printf("%d reminder(s) queued for %d overdue invoice(s)\n", sent, len(overdue))
			return nil
		},
	}
}
