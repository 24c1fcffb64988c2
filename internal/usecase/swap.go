package usecase

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/faceswap/internal/faceswap"
	"github.com/example/faceswap/internal/logging"
	"github.com/example/faceswap/internal/repository"
)

// ErrImageExpired is returned when a swap exists but its output image has
// already left the cache.
var ErrImageExpired = errors.New("swap output expired")

// SwapRepository defines the persistence operations needed by the use case.
type SwapRepository interface {
	SaveLog(ctx context.Context, log *repository.SwapLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.SwapLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Swapper performs a single face swap.
type Swapper interface {
	Swap(ctx context.Context, src, dest faceswap.Input) (*image.NRGBA, error)
}

// SwapResult describes a finished swap.
type SwapResult struct {
	RequestID string
	Width     int
	Height    int
}

// SwapUseCase runs swaps for authenticated callers, keeps outputs in the
// cache for a limited time and records every request.
type SwapUseCase struct {
	repo           SwapRepository
	cache          Cache
	swapper        Swapper
	logger         *zap.Logger
	resultTTL      time.Duration
	jpegQuality    int
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedSwap struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	LatencyMs int64     `json:"latency_ms"`
	InputHash string    `json:"input_sha1"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSwapUseCase constructs a new use case instance.
func NewSwapUseCase(repo SwapRepository, cache Cache, swapper Swapper, resultTTL time.Duration, logger *zap.Logger) *SwapUseCase {
	return &SwapUseCase{
		repo:           repo,
		cache:          cache,
		swapper:        swapper,
		logger:         logger.Named("swap_usecase"),
		resultTTL:      resultTTL,
		jpegQuality:    90,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Swap decodes both uploads, runs the swap and caches the JPEG output.
func (uc *SwapUseCase) Swap(ctx context.Context, userID string, src, dest []byte) (*SwapResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.swap", requestID)

	srcImg, err := decodeUpload(src)
	if err != nil {
		return nil, logging.NewOperationError("usecase.decode_source", requestID, err)
	}
	destImg, err := decodeUpload(dest)
	if err != nil {
		return nil, logging.NewOperationError("usecase.decode_destination", requestID, err)
	}

	start := time.Now()
	out, swapErr := uc.swapper.Swap(ctx, faceswap.FromImage(srcImg), faceswap.FromImage(destImg))
	log := &repository.SwapLog{
		RequestID: requestID,
		UserID:    userID,
		InputHash: inputHash(src, dest),
		Success:   swapErr == nil,
		LatencyMs: time.Since(start).Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}

	if swapErr != nil {
		log.Error = swapErr.Error()
		if err := uc.repo.SaveLog(ctx, log); err != nil {
			opLogger.Warn("failed to persist failed swap", zap.Error(err))
		}
		wrapped := logging.NewOperationError("usecase.swap", requestID, swapErr)
		opLogger.Error("face swap failed", zap.Error(wrapped))
		return nil, wrapped
	}
	log.Width, log.Height = out.Rect.Dx(), out.Rect.Dy()

	var encoded bytes.Buffer
	if err := imaging.Encode(&encoded, out, imaging.JPEG, imaging.JPEGQuality(uc.jpegQuality)); err != nil {
		return nil, logging.NewOperationError("usecase.encode_output", requestID, err)
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.image", func() error {
		return uc.cache.Set(ctx, imageKey(requestID), encoded.Bytes(), uc.resultTTL)
	}); err != nil {
		return nil, err
	}

	serialized, err := json.Marshal(cachedSwap{
		RequestID: requestID,
		UserID:    userID,
		Width:     log.Width,
		Height:    log.Height,
		LatencyMs: log.LatencyMs,
		InputHash: log.InputHash,
		CreatedAt: log.CreatedAt,
	})
	if err != nil {
		return nil, logging.NewOperationError("usecase.serialize_result", requestID, err)
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, resultKey(requestID), string(serialized), uc.resultTTL)
	}); err != nil {
		return nil, err
	}

	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist swap log", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("swap stored", zap.Int("bytes", encoded.Len()), zap.Int64("latency_ms", log.LatencyMs))
	return &SwapResult{RequestID: requestID, Width: log.Width, Height: log.Height}, nil
}

// GetResult retrieves swap metadata from the cache or, once it has
// expired there, from persistence.
func (uc *SwapUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.SwapLog, error) {
	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", resultKey(requestID))
	switch {
	case err == nil:
		var payload cachedSwap
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
		} else if payload.UserID == userID {
			return &repository.SwapLog{
				RequestID: requestID,
				UserID:    payload.UserID,
				InputHash: payload.InputHash,
				Success:   true,
				Width:     payload.Width,
				Height:    payload.Height,
				LatencyMs: payload.LatencyMs,
				CreatedAt: payload.CreatedAt,
			}, nil
		}
	case !errors.Is(err, redis.Nil):
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

// GetImage returns the JPEG output of a successful swap owned by userID.
func (uc *SwapUseCase) GetImage(ctx context.Context, userID, requestID string) ([]byte, error) {
	log, err := uc.GetResult(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if !log.Success {
		return nil, ErrImageExpired
	}

	data, err := uc.withRedisGet(ctx, requestID, "cache.get.image", imageKey(requestID))
	if errors.Is(err, redis.Nil) {
		return nil, ErrImageExpired
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (uc *SwapUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !logging.IsTransient(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *SwapUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func decodeUpload(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &faceswap.Error{Kind: faceswap.KindInvalidImage, Op: "decode_upload", Msg: "unreadable image", Err: err}
	}
	return img, nil
}

func inputHash(src, dest []byte) string {
	h := sha1.New()
	h.Write(src)
	h.Write(dest)
	return hex.EncodeToString(h.Sum(nil))
}
