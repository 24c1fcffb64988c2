package gradio

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/example/faceswap/internal/logging"
	"github.com/example/faceswap/internal/remote"
)

// fakeSpace mimics the subset of a Gradio 5 app used by Client.
type fakeSpace struct {
	t      *testing.T
	output []byte

	mu        sync.Mutex
	uploads   []string
	callData  []any
	authSeen  []string
	failEvent bool
}

func newFakeSpace(t *testing.T) (*fakeSpace, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fs := &fakeSpace{t: t, output: encodePNG(t, color.NRGBA{R: 10, G: 200, B: 30, A: 255})}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		fs.mu.Lock()
		fs.authSeen = append(fs.authSeen, c.GetHeader("Authorization"))
		fs.mu.Unlock()
		c.Next()
	})

	router.GET("/api/spaces/:owner/:name/host", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"subdomain": c.Param("owner") + "-" + c.Param("name"),
			"host":      "http://" + c.Request.Host,
		})
	})
	router.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": "5.0.0", "api_prefix": "/gradio_api"})
	})
	router.POST("/gradio_api/upload", func(c *gin.Context) {
		file, err := c.FormFile("files")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		serverPath := "/tmp/gradio/" + file.Filename
		fs.mu.Lock()
		fs.uploads = append(fs.uploads, file.Filename)
		fs.mu.Unlock()
		c.JSON(http.StatusOK, []string{serverPath})
	})
	router.POST("/gradio_api/call/swap_faces", func(c *gin.Context) {
		var body struct {
			Data []any `json:"data"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		fs.mu.Lock()
		fs.callData = body.Data
		fail := fs.failEvent
		fs.mu.Unlock()
		if fail {
			c.JSON(http.StatusOK, gin.H{"event_id": "evt-fail"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"event_id": "evt-1"})
	})
	router.GET("/gradio_api/call/swap_faces/:event", func(c *gin.Context) {
		if c.Param("event") == "evt-fail" {
			c.SSEvent("error", "null")
			return
		}
		c.SSEvent("heartbeat", "null")
		c.SSEvent("complete", []any{
			map[string]any{
				"path": "/tmp/gradio/out.png",
				"url":  "http://" + c.Request.Host + "/files/out.png",
				"meta": map[string]any{"_type": "gradio.FileData"},
			},
		})
	})
	router.GET("/files/:name", func(c *gin.Context) {
		c.Data(http.StatusOK, "image/png", fs.output)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return fs, srv
}

func encodePNG(t *testing.T, fill color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = fill.R, fill.G, fill.B, fill.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, encodePNG(t, color.NRGBA{R: 1, G: 2, B: 3, A: 255}), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDialResolvesSpaceThroughHub(t *testing.T) {
	_, srv := newFakeSpace(t)

	client, err := Dial(context.Background(), "tonyassi/face-swap", WithHubURL(srv.URL))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if client.Host() != srv.URL {
		t.Fatalf("expected host %s, got %s", srv.URL, client.Host())
	}
	if client.prefix != "/gradio_api" {
		t.Fatalf("unexpected api prefix %q", client.prefix)
	}
}

func TestPredictUploadsCallsAndDownloads(t *testing.T) {
	fs, srv := newFakeSpace(t)
	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")

	client, err := Dial(context.Background(), srv.URL, WithToken("hf_test"), WithDownloadDir(downloads))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	src := writeInput(t, dir, "src.png")
	dest := writeInput(t, dir, "dest.png")
	out, err := client.Predict(context.Background(), "/swap_faces", remote.File("src_img", src), remote.File("dest_img", dest))
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}

	list, ok := out.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected single element list, got %#v", out)
	}
	record, ok := list[0].(map[string]any)
	if !ok {
		t.Fatalf("expected file record, got %T", list[0])
	}
	localPath, _ := record["path"].(string)
	if filepath.Dir(localPath) != downloads {
		t.Fatalf("expected output under %s, got %s", downloads, localPath)
	}
	got, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Equal(got, fs.output) {
		t.Fatal("downloaded bytes differ from served output")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.uploads) != 2 || fs.uploads[0] != "src.png" || fs.uploads[1] != "dest.png" {
		t.Fatalf("unexpected uploads: %v", fs.uploads)
	}
	if len(fs.callData) != 2 {
		t.Fatalf("expected two call arguments, got %d", len(fs.callData))
	}
	first, _ := fs.callData[0].(map[string]any)
	if first["path"] != "/tmp/gradio/src.png" {
		t.Fatalf("unexpected first argument: %#v", first)
	}
	for _, h := range fs.authSeen {
		if h != "Bearer hf_test" {
			t.Fatalf("expected bearer token on every request, got %q", h)
		}
	}
}

func TestReleaseRemovesDownloadedOutputs(t *testing.T) {
	_, srv := newFakeSpace(t)
	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")

	client, err := Dial(context.Background(), srv.URL, WithDownloadDir(downloads))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	src := writeInput(t, dir, "src.png")
	dest := writeInput(t, dir, "dest.png")
	out, err := client.Predict(context.Background(), "/swap_faces", remote.File("src_img", src), remote.File("dest_img", dest))
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}

	if err := client.Release(out); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	entries, err := os.ReadDir(downloads)
	if err != nil {
		t.Fatalf("read download dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty download dir, found %d entries", len(entries))
	}

	if err := client.Release([]any{map[string]any{"path": src}}); err != nil {
		t.Fatalf("release of foreign path failed: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("paths outside the download dir must be kept: %v", err)
	}
}

func TestPredictReportsErrorEvent(t *testing.T) {
	fs, srv := newFakeSpace(t)
	fs.mu.Lock()
	fs.failEvent = true
	fs.mu.Unlock()

	client, err := Dial(context.Background(), srv.URL, WithDownloadDir(t.TempDir()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	src := writeInput(t, t.TempDir(), "a.png")

	_, err = client.Predict(context.Background(), "/swap_faces", remote.File("src_img", src), remote.File("dest_img", src))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "gradio.stream" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}

func TestPredictFailsOnMissingFile(t *testing.T) {
	_, srv := newFakeSpace(t)
	client, err := Dial(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	_, err = client.Predict(context.Background(), "/swap_faces", remote.File("src_img", filepath.Join(t.TempDir(), "missing.png")))
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "gradio.upload" {
		t.Fatalf("expected gradio.upload error, got %v", err)
	}
}

func TestDialFailsForUnknownSpace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	srv := httptest.NewServer(router)
	defer srv.Close()

	_, err := Dial(context.Background(), "nobody/nothing", WithHubURL(srv.URL))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
}
