package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"celebdetect/internal/handler"
	"celebdetect/internal/llm"
	"celebdetect/internal/repository"
	"celebdetect/internal/server"
	"celebdetect/internal/service"
	"celebdetect/internal/vision"
	"celebdetect/internal/vision/cascade"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log := current.cfg, current.log
	ctx := cmd.Context()

	detector, err := cascade.New(&cfg.Detector, log)
	if err != nil {
		return err
	}
	defer detector.Close()

	client := llm.NewClient(&cfg.LLM, log)
	log.Info("LLM client configured",
		zap.String("url", cfg.LLM.APIURL),
		zap.String("model", client.Model()),
		zap.Duration("timeout", cfg.LLM.Timeout))

	var archive service.ArchiveService
	if cfg.App.ArchiveEnabled {
		repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
		if err != nil {
			return fmt.Errorf("failed to create S3 repository: %w", err)
		}
		archive = service.NewArchiveService(repo, log)
	}

	h := handler.NewHandler(
		vision.NewExtractor(detector, cfg.Detector.MaxPixels, log),
		service.NewCelebrityService(client, log),
		service.NewQAService(client, log),
		archive,
		&cfg.App,
		log,
	)

	srv, err := server.New(cfg, h, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
