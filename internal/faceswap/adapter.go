// Package faceswap turns heterogeneous image inputs into a single remote
// face-swap call and decodes the reply into an RGB image.
package faceswap

import (
	"context"
	"errors"
	"go/version"
	"image"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/faceswap/internal/logging"
	"github.com/example/faceswap/internal/remote"
)

const (
	// SourceParam and DestParam name the file arguments of the remote operation.
	SourceParam = "src_img"
	DestParam   = "dest_img"

	DefaultAPIName = "/swap_faces"

	// MinRuntimeVersion is the oldest Go release the adapter accepts.
	MinRuntimeVersion = "go1.21"
)

var errNoConnection = errors.New("dialer returned no connection")

// DialFunc constructs a connection to the remote service.
type DialFunc func(ctx context.Context) (remote.Connection, error)

// Options tune an Adapter. Zero values fall back to defaults.
type Options struct {
	APIName string
	TempDir string
	// Target names the remote service in error messages, e.g. a Space id.
	Target string
}

// Adapter stages inputs, calls the remote face-swap operation and decodes
// the reply. It is safe for concurrent use if its connection is.
type Adapter struct {
	dial    DialFunc
	apiName string
	tempDir string
	target  string
	logger  *zap.Logger

	runtimeVersion string

	mu   sync.Mutex
	conn remote.Connection
}

// New returns an Adapter that dials lazily on first use. A failed dial is
// not remembered: the next call dials again, without backoff.
func New(dial DialFunc, opts Options, logger *zap.Logger) *Adapter {
	if opts.APIName == "" {
		opts.APIName = DefaultAPIName
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		dial:           dial,
		apiName:        opts.APIName,
		tempDir:        opts.TempDir,
		target:         opts.Target,
		logger:         logger.Named("faceswap"),
		runtimeVersion: runtime.Version(),
	}
}

// NewWithConnection returns an Adapter bound to an existing connection.
func NewWithConnection(conn remote.Connection, opts Options, logger *zap.Logger) *Adapter {
	a := New(nil, opts, logger)
	a.conn = conn
	return a
}

// Swap puts the face from src onto dest and returns the result as a new
// opaque RGB image. Files staged for in-memory inputs, and output files the
// connection downloaded, are removed before Swap returns.
func (a *Adapter) Swap(ctx context.Context, src, dest Input) (*image.NRGBA, error) {
	callID := uuid.NewString()
	opLogger := logging.WithOperation(a.logger, "faceswap.swap", callID)

	conn, err := a.connection(ctx)
	if err != nil {
		opLogger.Error("remote connection unavailable", zap.Error(err))
		return nil, err
	}

	srcFile, err := stage(src, a.tempDir)
	if err != nil {
		opLogger.Warn("source image rejected", zap.Stringer("input", src), zap.Error(err))
		return nil, err
	}
	defer srcFile.release(opLogger)

	destFile, err := stage(dest, a.tempDir)
	if err != nil {
		opLogger.Warn("destination image rejected", zap.Stringer("input", dest), zap.Error(err))
		return nil, err
	}
	defer destFile.release(opLogger)

	start := time.Now()
	reply, err := conn.Predict(ctx, a.apiName,
		remote.File(SourceParam, srcFile.path),
		remote.File(DestParam, destFile.path),
	)
	if err != nil {
		wrapped := wrapError(KindRemoteCall, "predict", err,
			"remote face swap call failed for %q with api_name %q", a.target, a.apiName)
		opLogger.Error("remote call failed", zap.Error(wrapped), zap.Duration("latency", time.Since(start)))
		return nil, wrapped
	}
	if r, ok := conn.(remote.Releaser); ok {
		defer func() {
			if err := r.Release(reply); err != nil {
				opLogger.Debug("failed to release remote output", zap.Error(err))
			}
		}()
	}

	out, err := DecodeResult(reply)
	if err != nil {
		opLogger.Error("remote result not decodable", zap.Error(err))
		return nil, err
	}

	opLogger.Info("face swap completed",
		zap.Duration("latency", time.Since(start)),
		zap.Int("width", out.Rect.Dx()),
		zap.Int("height", out.Rect.Dy()),
	)
	return out, nil
}

// connection returns the cached connection, dialing if there is none yet.
// Concurrent first calls dial once.
func (a *Adapter) connection(ctx context.Context) (remote.Connection, error) {
	if err := checkRuntime(a.runtimeVersion); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return a.conn, nil
	}
	if a.dial == nil {
		return nil, &Error{Kind: KindRemoteInit, Op: "connect", Msg: "no remote connection configured"}
	}

	conn, err := a.dial(ctx)
	if err == nil && conn == nil {
		err = errNoConnection
	}
	if err != nil {
		return nil, wrapError(KindRemoteInit, "connect", err, "failed to initialize remote client for %q", a.target)
	}
	a.conn = conn
	return conn, nil
}

// Close releases the connection if it holds resources.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	closer, ok := a.conn.(io.Closer)
	a.conn = nil
	if !ok {
		return nil
	}
	return closer.Close()
}

func checkRuntime(v string) error {
	if !version.IsValid(v) {
		// devel builds carry no comparable release number
		return nil
	}
	if version.Compare(v, MinRuntimeVersion) < 0 {
		return &Error{Kind: KindRemoteInit, Op: "runtime_check", Msg: MinRuntimeVersion + " or newer is required, running " + v}
	}
	return nil
}
