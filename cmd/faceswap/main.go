// Command faceswap swaps the face from a source image onto a target image
// using the configured remote service and writes the result to output.jpg.
package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/example/faceswap/internal/config"
	"github.com/example/faceswap/internal/faceswap"
	"github.com/example/faceswap/internal/logging"
)

const outputPath = "output.jpg"

type swapper interface {
	Swap(ctx context.Context, src, dest faceswap.Input) (*image.NRGBA, error)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: faceswap <source_img> <target_img>")
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "faceswap: %v\n", err)
		return 1
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(stderr, "faceswap: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := faceswap.NewFromConfig(cfg.Remote, logger)
	defer adapter.Close()

	if err := swapToFile(ctx, adapter, args[0], args[1], outputPath); err != nil {
		logger.Error("face swap failed",
			zap.String("source", args[0]),
			zap.String("target", args[1]),
			zap.Error(err),
		)
		return 1
	}

	fmt.Fprintf(stdout, "Saved %s\n", outputPath)
	return 0
}

func swapToFile(ctx context.Context, s swapper, src, dest, out string) error {
	img, err := s.Swap(ctx, faceswap.FromPath(src), faceswap.FromPath(dest))
	if err != nil {
		return err
	}
	if err := imaging.Save(img, out, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	return nil
}
