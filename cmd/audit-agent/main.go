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
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"audit-agent/internal/app/routers"
	"audit-agent/internal/app/services"
	"audit-agent/internal/pkg/logger"
	"audit-agent/internal/pkg/storage"
	"audit-agent/pkg/config"
)

var configFile string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "audit-agent",
		Short: "三重一大事项分析服务",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	var stopCmd = &cobra.Command{
		Use:   "stop <taskId>",
		Short: "Ask the analysis platform to stop a running task",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}
	stopCmd.Flags().StringP("user", "u", "", "User that started the task")
	rootCmd.AddCommand(stopCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if err := config.Init(configFile); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logConf := config.GetLogConf()
	return logger.Init(logConf.Level, logConf.File)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if config.GetRunMode() != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := storage.Init(); err != nil {
		return err
	}
	services.Init()

	srv := &http.Server{
		Addr:    config.GetServerConf().Addr,
		Handler: routers.SetUp(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("audit-agent listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runStop(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	user, _ := cmd.Flags().GetString("user")

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if !services.NewPlatformClient(config.GetPlatformConf()).StopGenerating(ctx, args[0], user) {
		return fmt.Errorf("stop task %s failed", args[0])
	}
	fmt.Printf("task %s stop requested\n", args[0])
	return nil
}
