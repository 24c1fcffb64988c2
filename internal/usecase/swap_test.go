package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/faceswap/internal/faceswap"
	"github.com/example/faceswap/internal/logging"
	"github.com/example/faceswap/internal/repository"
)

type stubRepository struct {
	savedLogs []*repository.SwapLog
	saveErr   error
	findLog   *repository.SwapLog
	findErr   error
	findCalls int
	metrics   *repository.MetricsAggregation
}

func (s *stubRepository) SaveLog(ctx context.Context, log *repository.SwapLog) error {
	s.savedLogs = append(s.savedLogs, log)
	return s.saveErr
}

func (s *stubRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.SwapLog, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findLog != nil {
		return s.findLog, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	if s.metrics == nil {
		return &repository.MetricsAggregation{}, nil
	}
	return s.metrics, nil
}

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	getKeys   []string
	values    map[string]interface{}
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		if err != nil {
			return err
		}
	}
	if s.values == nil {
		s.values = make(map[string]interface{})
	}
	s.values[key] = value
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type stubSwapper struct {
	result *image.NRGBA
	err    error
	calls  int
}

func (s *stubSwapper) Swap(ctx context.Context, src, dest faceswap.Input) (*image.NRGBA, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSwapCachesOutputAndSavesLog(t *testing.T) {
	cache := &stubCache{}
	repo := &stubRepository{}
	swapper := &stubSwapper{result: imaging.New(3, 2, color.NRGBA{G: 255, A: 255})}
	uc := NewSwapUseCase(repo, cache, swapper, time.Minute, zap.NewNop())

	res, err := uc.Swap(context.Background(), "user-1", pngBytes(t, 4, 4), pngBytes(t, 3, 2))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if res.Width != 3 || res.Height != 2 {
		t.Fatalf("unexpected dimensions %dx%d", res.Width, res.Height)
	}
	if len(cache.setKeys) != 2 || cache.setKeys[0] != imageKey(res.RequestID) || cache.setKeys[1] != resultKey(res.RequestID) {
		t.Fatalf("unexpected cache keys: %v", cache.setKeys)
	}

	encoded, ok := cache.values[imageKey(res.RequestID)].([]byte)
	if !ok {
		t.Fatalf("expected image bytes in cache, got %T", cache.values[imageKey(res.RequestID)])
	}
	decoded, err := imaging.Decode(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("cached output is not a readable image: %v", err)
	}
	if decoded.Bounds().Dx() != 3 || decoded.Bounds().Dy() != 2 {
		t.Fatalf("unexpected cached image bounds %v", decoded.Bounds())
	}

	if len(repo.savedLogs) != 1 {
		t.Fatalf("expected log to be saved, got %d entries", len(repo.savedLogs))
	}
	saved := repo.savedLogs[0]
	if !saved.Success || saved.UserID != "user-1" || saved.RequestID != res.RequestID {
		t.Fatalf("unexpected saved log: %+v", saved)
	}
	if len(saved.InputHash) != 40 {
		t.Fatalf("expected sha1 hex input hash, got %q", saved.InputHash)
	}
}

func TestSwapRetriesRedisSet(t *testing.T) {
	cache := &stubCache{setErrs: []error{transientRedisError{}}}
	repo := &stubRepository{}
	swapper := &stubSwapper{result: imaging.New(1, 1, color.NRGBA{A: 255})}
	uc := NewSwapUseCase(repo, cache, swapper, time.Minute, zap.NewNop())

	if _, err := uc.Swap(context.Background(), "user-1", pngBytes(t, 1, 1), pngBytes(t, 1, 1)); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(cache.setKeys) != 3 {
		t.Fatalf("expected 3 cache set calls (retry + result), got %d", len(cache.setKeys))
	}
	if cache.setKeys[0] != cache.setKeys[1] {
		t.Fatalf("expected retry to target same key, got %s and %s", cache.setKeys[0], cache.setKeys[1])
	}
}

func TestSwapReturnsOperationErrorOnCacheFailure(t *testing.T) {
	cache := &stubCache{setErrs: []error{errors.New("boom")}}
	repo := &stubRepository{}
	swapper := &stubSwapper{result: imaging.New(1, 1, color.NRGBA{A: 255})}
	uc := NewSwapUseCase(repo, cache, swapper, time.Minute, zap.NewNop())

	_, err := uc.Swap(context.Background(), "user-1", pngBytes(t, 1, 1), pngBytes(t, 1, 1))
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T (%v)", err, err)
	}
	if opErr.Operation != "cache.set.image" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if len(repo.savedLogs) != 0 {
		t.Fatalf("expected no log for uncached output, got %d", len(repo.savedLogs))
	}
}

func TestSwapRejectsUndecodableUpload(t *testing.T) {
	swapper := &stubSwapper{}
	uc := NewSwapUseCase(&stubRepository{}, &stubCache{}, swapper, time.Minute, zap.NewNop())

	_, err := uc.Swap(context.Background(), "user-1", []byte("not an image"), pngBytes(t, 1, 1))
	if !errors.Is(err, faceswap.ErrInvalidImage) {
		t.Fatalf("expected invalid image error, got %v", err)
	}
	if swapper.calls != 0 {
		t.Fatalf("expected swapper not to be called, got %d calls", swapper.calls)
	}
}

func TestSwapRecordsRemoteFailure(t *testing.T) {
	remoteErr := &faceswap.Error{Kind: faceswap.KindRemoteCall, Op: "predict", Msg: "space crashed"}
	repo := &stubRepository{}
	cache := &stubCache{}
	uc := NewSwapUseCase(repo, cache, &stubSwapper{err: remoteErr}, time.Minute, zap.NewNop())

	_, err := uc.Swap(context.Background(), "user-1", pngBytes(t, 1, 1), pngBytes(t, 1, 1))
	if !errors.Is(err, faceswap.ErrRemoteCall) {
		t.Fatalf("expected remote call error, got %v", err)
	}
	if len(repo.savedLogs) != 1 || repo.savedLogs[0].Success || repo.savedLogs[0].Error == "" {
		t.Fatalf("expected failed swap to be logged, got %+v", repo.savedLogs)
	}
	if len(cache.setKeys) != 0 {
		t.Fatalf("expected nothing cached, got %v", cache.setKeys)
	}
}

func TestGetResultUsesCacheForOwner(t *testing.T) {
	payload, _ := json.Marshal(cachedSwap{RequestID: "req", UserID: "user", Width: 5, Height: 6})
	cache := &stubCache{getValues: []string{string(payload)}}
	repo := &stubRepository{}
	uc := NewSwapUseCase(repo, cache, &stubSwapper{}, time.Minute, zap.NewNop())

	log, err := uc.GetResult(context.Background(), "user", "req")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if log.Width != 5 || log.Height != 6 || !log.Success {
		t.Fatalf("unexpected log %+v", log)
	}
	if repo.findCalls != 0 {
		t.Fatalf("expected repository not to be queried, got %d", repo.findCalls)
	}
}

func TestGetResultIgnoresCacheEntryOfAnotherUser(t *testing.T) {
	payload, _ := json.Marshal(cachedSwap{RequestID: "req", UserID: "someone-else"})
	cache := &stubCache{getValues: []string{string(payload)}}
	uc := NewSwapUseCase(&stubRepository{}, cache, &stubSwapper{}, time.Minute, zap.NewNop())

	if _, err := uc.GetResult(context.Background(), "user", "req"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetResultFallsBackToRepositoryWhenCacheMiss(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}}
	expected := &repository.SwapLog{RequestID: "req", UserID: "user", Success: true}
	repo := &stubRepository{findLog: expected}
	uc := NewSwapUseCase(repo, cache, &stubSwapper{}, time.Minute, zap.NewNop())

	log, err := uc.GetResult(context.Background(), "user", "req")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if log != expected {
		t.Fatalf("expected %+v, got %+v", expected, log)
	}
	if repo.findCalls != 1 {
		t.Fatalf("expected repository to be queried once, got %d", repo.findCalls)
	}
}

func TestGetImageReportsExpiredOutput(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil, redis.Nil}}
	repo := &stubRepository{findLog: &repository.SwapLog{RequestID: "req", UserID: "user", Success: true}}
	uc := NewSwapUseCase(repo, cache, &stubSwapper{}, time.Minute, zap.NewNop())

	if _, err := uc.GetImage(context.Background(), "user", "req"); !errors.Is(err, ErrImageExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
	if len(cache.getKeys) != 2 || cache.getKeys[1] != imageKey("req") {
		t.Fatalf("unexpected cache reads: %v", cache.getKeys)
	}
}

func TestGetMetricsSummaryComputesSuccessRate(t *testing.T) {
	repo := &stubRepository{metrics: &repository.MetricsAggregation{TotalCount: 4, SuccessCount: 3, AverageLatencyMs: 120}}
	uc := NewSwapUseCase(repo, &stubCache{}, &stubSwapper{}, time.Minute, zap.NewNop())

	summary, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.SuccessRate != 0.75 || summary.AverageRemoteLatencyMs != 120 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
