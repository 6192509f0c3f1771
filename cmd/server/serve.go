package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chadiek/smileright-voice/internal/config"
	"github.com/chadiek/smileright-voice/internal/httpserver"
)

func newServeCmd() *cobra.Command {
	var insecureTwilio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Twilio voice webhooks and the WebSocket text channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(nil)
			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			cfg = config.Load(log)

			conv, err := config.LoadConversation(cfg.ConversationFile)
			if err != nil {
				return err
			}
			mgr, err := buildManager(cfg, conv, buildOptions{useLLM: true, notifications: true, archive: true}, log)
			if err != nil {
				return err
			}
			if insecureTwilio {
				log.Warn("Twilio signature validation disabled")
			}

			srv := httpserver.New(httpserver.Options{
				Manager:             mgr,
				Logger:              log.Named("http"),
				TwilioAuthToken:     cfg.TwilioAuthToken,
				PublicBaseURL:       cfg.PublicBaseURL,
				SkipTwilioSignature: insecureTwilio,
				AuthPassword:        cfg.AuthPassword,
			})
			server := &http.Server{
				Addr:              cfg.HTTPAddress,
				Handler:           srv.Router,
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("server listening", zap.String("addr", cfg.HTTPAddress))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Warn("graceful shutdown failed", zap.Error(err))
					_ = server.Close()
				}
				// Live calls are archived as disconnected.
				mgr.Shutdown()
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&insecureTwilio, "insecure-twilio", false, "skip X-Twilio-Signature validation (local testing only)")
	return cmd
}
