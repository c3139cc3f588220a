// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command codeverify starts the feature-verification API server.
//
// The server accepts a zipped codebase plus a feature description,
// locates where the feature is implemented, and drives a reasoning
// engine through sandboxed tool calls until a validated pass/fail
// verdict.
//
// Usage:
//
//	OPENAI_API_KEY=sk-... go run ./cmd/codeverify serve
//	OPENAI_API_KEY=sk-... go run ./cmd/codeverify serve --port 9090 --debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8000/v1/verify/health
//
//	# Analyze an uploaded codebase
//	curl -X POST http://localhost:8000/v1/verify/analyze \
//	  -F "file=@codebase.zip" \
//	  -F "feature=GET /users returns the user list as JSON"
//
//	# Verify the feature
//	curl -X POST http://localhost:8000/v1/verify/generate-tests \
//	  -H "Content-Type: application/json" \
//	  -d '{"workspace_id": "<id from analyze>"}'
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
	"github.com/AleutianAI/CodeVerify/services/verifier"
	"github.com/AleutianAI/CodeVerify/services/verifier/config"
	"github.com/AleutianAI/CodeVerify/services/verifier/engine"
)

// workspaceMaxAge is how long extracted uploads are kept on disk.
const workspaceMaxAge = 24 * time.Hour

var (
	configPath string
	port       int
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "codeverify",
		Short: "A service that verifies described features actually work in an uploaded codebase",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the verification API server",
		RunE:  runServe,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to the config file (default ~/.codeverify/codeverify.yaml)")
	serveCmd.Flags().IntVar(&port, "port", 0, "Override the configured listen port")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging and gin debug mode")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "verifier",
	})
	defer logger.Close()

	client, err := engine.NewOpenAIClient(cfg.Engine, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine client: %w", err)
	}

	svc := verifier.NewService(cfg, client, logger)
	handlers := verifier.NewHandlers(svc, logger)

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	verifier.RegisterRoutes(router.Group("/v1"), handlers)
	verifier.RegisterMetrics(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("server starting", "addr", addr, "model", client.Model())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				svc.Cleanup(workspaceMaxAge)
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
