package faceswap

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/faceswap/internal/config"
	"github.com/example/faceswap/internal/gradio"
	"github.com/example/faceswap/internal/grpcclient"
	"github.com/example/faceswap/internal/remote"
)

// DialerFromConfig returns the DialFunc for the configured transport.
func DialerFromConfig(cfg config.RemoteConfig, logger *zap.Logger) DialFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Transport == config.TransportGRPC {
		return func(ctx context.Context) (remote.Connection, error) {
			c, err := grpcclient.Dial(ctx, cfg.GRPCAddr, logger)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	return func(ctx context.Context) (remote.Connection, error) {
		c, err := gradio.Dial(ctx, cfg.SpaceID,
			gradio.WithHubURL(cfg.HubURL),
			gradio.WithToken(cfg.HFToken),
			gradio.WithDownloadDir(cfg.DownloadDir),
			gradio.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			gradio.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// NewFromConfig builds a lazily dialing Adapter for cfg.
func NewFromConfig(cfg config.RemoteConfig, logger *zap.Logger) *Adapter {
	target := cfg.SpaceID
	if cfg.Transport == config.TransportGRPC {
		target = cfg.GRPCAddr
	}
	return New(DialerFromConfig(cfg, logger), Options{
		APIName: cfg.APIName,
		TempDir: cfg.TempDir,
		Target:  target,
	}, logger)
}
