package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"support-widget/internal/config"
	"support-widget/internal/credential"
	"support-widget/internal/intercom"
	"support-widget/internal/logging"
	"support-widget/internal/middleware"
	"support-widget/internal/server"
	"support-widget/internal/support"
	"support-widget/internal/transcript"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "support-widget",
		Short:        "Customer support chat backend proxying to Intercom",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(serveCmd(), conversationCmd(), credentialCmd())
	return root
}

type app struct {
	cfg         config.Config
	logger      *slog.Logger
	credentials credential.Source
	service     *support.Service
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	sources := credential.Chain{credential.EnvSource{Env: config.OSEnv()}}
	if cfg.UseKeyring {
		sources = append(sources, credential.NewKeyringSource())
	}

	client := intercom.NewClient(intercom.Options{
		BaseURL:     cfg.IntercomBaseURL,
		APIVersion:  cfg.IntercomAPIVersion,
		Credentials: sources,
		HTTPClient:  intercom.NewHTTPClient(cfg.IntercomTimeout),
		Logger:      logger,
	})
	return &app{
		cfg:         cfg,
		logger:      logger,
		credentials: sources,
		service:     support.NewService(client, logger),
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if _, err := credential.Require(a.credentials); err != nil {
		// Not fatal: every request re-checks and answers with a configuration error.
		a.logger.Warn("intercom credential missing; requests will fail until it is set")
	}

	gin.SetMode(a.cfg.GinMode)
	var sendLimiter *middleware.RateLimiter
	if a.cfg.SendRateLimit > 0 {
		sendLimiter = middleware.NewRateLimiter(a.cfg.SendRateLimit, time.Minute)
		defer sendLimiter.Stop()
	}

	router := server.NewRouter(server.Deps{
		Service:       a.service,
		Credentials:   a.credentials,
		Logger:        a.logger,
		SendLimiter:   sendLimiter,
		WatchInterval: a.cfg.WatchInterval,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("listening", "addr", fmt.Sprintf(":%d", a.cfg.Port), "intercom", a.cfg.IntercomBaseURL)
	return server.Run(ctx, a.cfg, router)
}

func conversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Inspect or post to Intercom conversations",
	}

	show := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			conv, err := a.service.GetConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return transcript.Render(cmd.OutOrStdout(), conv.ID, conv.State, support.Flatten(conv))
		},
	}

	var email, conversationID string
	send := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message as a user, opening a conversation when no id is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			conv, err := a.service.Send(cmd.Context(), support.RefFromID(conversationID), email, args[0])
			if err != nil {
				return err
			}
			return transcript.Render(cmd.OutOrStdout(), conv.ID, conv.State, support.Flatten(conv))
		},
	}
	send.Flags().StringVar(&email, "email", "", "user email (required)")
	send.Flags().StringVar(&conversationID, "conversation-id", "", "existing conversation to reply to")
	_ = send.MarkFlagRequired("email")

	cmd.AddCommand(show, send)
	return cmd
}

func credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the Intercom access token in the system keyring",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store the access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credential.NewKeyringSource().Set(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stored; enable with CREDENTIAL_KEYRING=true")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return credential.NewKeyringSource().Delete()
		},
	})
	return cmd
}
