package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/faceswap/internal/auth"
	"github.com/example/faceswap/internal/faceswap"
	"github.com/example/faceswap/internal/repository"
	"github.com/example/faceswap/internal/usecase"
)

// MaxUploadSize is the default per-image upload limit in bytes.
const MaxUploadSize = 10 << 20

const (
	sourceField      = "src_img"
	destinationField = "dest_img"
)

var allowedContentTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
}

var (
	errUploadTooLarge  = errors.New("upload too large")
	errUnsupportedType = errors.New("unsupported content type")
)

// SwapService is the use case surface the handlers depend on.
type SwapService interface {
	Swap(ctx context.Context, userID string, src, dest []byte) (*usecase.SwapResult, error)
	GetResult(ctx context.Context, userID, requestID string) (*repository.SwapLog, error)
	GetImage(ctx context.Context, userID, requestID string) ([]byte, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. A non-positive
// maxUpload falls back to MaxUploadSize.
func RegisterRoutes(router *gin.Engine, svc SwapService, authMiddleware gin.HandlerFunc, maxUpload int64) {
	if maxUpload <= 0 {
		maxUpload = MaxUploadSize
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/swap", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		// Two images plus multipart framing.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*maxUpload+(1<<20))

		src, err := readUpload(c, sourceField, maxUpload)
		if err != nil {
			writeUploadError(c, sourceField, err)
			return
		}
		dest, err := readUpload(c, destinationField, maxUpload)
		if err != nil {
			writeUploadError(c, destinationField, err)
			return
		}

		result, err := svc.Swap(c.Request.Context(), userID, src, dest)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": result.RequestID,
			"width":      result.Width,
			"height":     result.Height,
		})
	})

	protected.GET("/swap/:id", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		log, err := svc.GetResult(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": log.RequestID,
			"user_id":    log.UserID,
			"success":    log.Success,
			"error":      log.Error,
			"width":      log.Width,
			"height":     log.Height,
			"latency_ms": log.LatencyMs,
			"input_sha1": log.InputHash,
			"created_at": log.CreatedAt,
		})
	})

	protected.GET("/swap/:id/image", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		data, err := svc.GetImage(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/jpeg", data)
	})

	protected.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func readUpload(c *gin.Context, field string, maxUpload int64) ([]byte, error) {
	file, err := c.FormFile(field)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errUploadTooLarge
		}
		return nil, err
	}
	if file.Size > maxUpload {
		return nil, errUploadTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxUpload {
		return nil, errUploadTooLarge
	}
	if !allowedType(file, data) {
		return nil, errUnsupportedType
	}
	return data, nil
}

// allowedType trusts the declared part type and sniffs only when the client
// sent none or a generic one.
func allowedType(file *multipart.FileHeader, data []byte) bool {
	declared := strings.ToLower(strings.TrimSpace(file.Header.Get("Content-Type")))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "" || declared == "application/octet-stream" {
		declared = http.DetectContentType(data)
	}
	_, ok := allowedContentTypes[declared]
	return ok
}

func writeUploadError(c *gin.Context, field string, err error) {
	switch {
	case errors.Is(err, errUploadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " exceeds upload limit"})
	case errors.Is(err, errUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": field + " must be png, jpeg or gif"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file is required"})
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, faceswap.ErrInvalidImage):
		status = http.StatusBadRequest
	case errors.Is(err, faceswap.ErrRemoteInit):
		status = http.StatusServiceUnavailable
	case errors.Is(err, faceswap.ErrRemoteCall):
		status = http.StatusBadGateway
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, usecase.ErrImageExpired):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
