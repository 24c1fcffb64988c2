package grpcclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/faceswap/internal/logging"
	"github.com/example/faceswap/internal/remote"
)

// SwapFacesMethod is the full gRPC method name of the face-swap service.
// Requests are google.protobuf.Struct and replies google.protobuf.Value.
const SwapFacesMethod = "/faceswap.v1.FaceSwap/SwapFaces"

// Client implements remote.Connection over gRPC.
type Client struct {
	conn   *grpc.ClientConn
	addr   string
	logger *zap.Logger
}

// Dial returns a ready-to-use gRPC client for a self-hosted face-swap service.
func Dial(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewTargetError("grpcclient.dial", addr, err)
		logger.Error("failed to dial face swap service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return &Client{conn: conn, addr: addr, logger: logger.Named("grpcclient")}, nil
}

// Predict ships each parameter file inline as base64 and returns the reply
// converted to plain Go values. Inline image data in the reply is decoded.
func (c *Client) Predict(ctx context.Context, apiName string, params ...remote.Param) (any, error) {
	fields := map[string]any{"api_name": apiName}
	for _, p := range params {
		data, err := os.ReadFile(p.File.Path)
		if err != nil {
			return nil, logging.NewTargetError("grpcclient.read_param", c.addr, fmt.Errorf("%s: %w", p.Name, err))
		}
		fields[p.Name] = map[string]any{
			"name": filepath.Base(p.File.Path),
			"data": base64.StdEncoding.EncodeToString(data),
		}
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, logging.NewTargetError("grpcclient.encode_request", c.addr, err)
	}

	resp := new(structpb.Value)
	if err := c.conn.Invoke(ctx, SwapFacesMethod, req, resp); err != nil {
		wrapped := logging.NewTargetError("grpcclient.swap_faces", c.addr, err)
		c.logger.Error("face swap call failed", zap.Error(wrapped), zap.String("api_name", apiName))
		return nil, wrapped
	}

	out, err := inlineImages(resp.AsInterface())
	if err != nil {
		return nil, logging.NewTargetError("grpcclient.decode_reply", c.addr, err)
	}
	return out, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// inlineImages replaces every {"data": <base64 image>} record without a
// path by the decoded image.
func inlineImages(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			decoded, err := inlineImages(item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	case map[string]any:
		if p, _ := t["path"].(string); p != "" {
			return t, nil
		}
		encoded, ok := t["data"].(string)
		if !ok || encoded == "" {
			return t, nil
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode inline image: %w", err)
		}
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decode inline image: %w", err)
		}
		return img, nil
	default:
		return v, nil
	}
}
