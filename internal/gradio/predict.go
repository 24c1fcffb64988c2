package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/sse"
	"go.uber.org/zap"

	"github.com/example/faceswap/internal/logging"
	"github.com/example/faceswap/internal/remote"
)

// Event names sent on the result stream.
const (
	eventComplete = "complete"
	eventError    = "error"
)

// Predict uploads every file parameter, invokes apiName and waits for its
// output. Output files are downloaded and their "path" fields rewritten to
// the local copies, so the returned value refers only to local files.
func (c *Client) Predict(ctx context.Context, apiName string, params ...remote.Param) (any, error) {
	endpoint := strings.Trim(apiName, "/")
	if endpoint == "" {
		return nil, logging.NewTargetError("gradio.call", c.host, fmt.Errorf("empty api name"))
	}

	data := make([]any, 0, len(params))
	for _, p := range params {
		fd, err := c.upload(ctx, p.File.Path)
		if err != nil {
			return nil, logging.NewTargetError("gradio.upload", c.host, fmt.Errorf("%s: %w", p.Name, err))
		}
		data = append(data, fd)
	}

	var submitted struct {
		EventID string `json:"event_id"`
	}
	if err := c.postJSON(ctx, c.apiURL("call", endpoint), map[string]any{"data": data}, &submitted); err != nil {
		return nil, logging.NewTargetError("gradio.call", c.host, err)
	}
	if submitted.EventID == "" {
		return nil, logging.NewTargetError("gradio.call", c.host, fmt.Errorf("no event id returned for %s", apiName))
	}

	output, err := c.await(ctx, endpoint, submitted.EventID)
	if err != nil {
		return nil, logging.NewTargetError("gradio.stream", c.host, err)
	}

	local, err := c.localize(ctx, output)
	if err != nil {
		return nil, logging.NewTargetError("gradio.download", c.host, err)
	}
	return local, nil
}

// upload sends one file and returns the FileData payload that refers to it.
func (c *Client) upload(ctx context.Context, filePath string) (map[string]any, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.apiURL("upload"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if len(paths) == 0 || paths[0] == "" {
		return nil, fmt.Errorf("upload returned no path")
	}
	return map[string]any{
		"path":      paths[0],
		"orig_name": filepath.Base(filePath),
		"meta":      map[string]any{"_type": "gradio.FileData"},
	}, nil
}

// await reads the event stream of a submitted call until it completes.
func (c *Client) await(ctx context.Context, endpoint, eventID string) (any, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.apiURL("call", endpoint, eventID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	events, err := sse.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		payload, _ := ev.Data.(string)
		switch ev.Event {
		case eventComplete:
			var output []any
			if err := json.Unmarshal([]byte(payload), &output); err != nil {
				return nil, fmt.Errorf("decode %s event: %w", ev.Event, err)
			}
			return output, nil
		case eventError:
			if payload == "" || payload == "null" {
				return nil, fmt.Errorf("app reported an error for event %s", eventID)
			}
			return nil, fmt.Errorf("app reported an error for event %s: %s", eventID, payload)
		default:
			c.logger.Debug("stream event", zap.String("event", ev.Event), zap.String("event_id", eventID))
		}
	}
	return nil, fmt.Errorf("stream for event %s ended without a result", eventID)
}

// localize downloads every FileData found in v and returns a copy of v
// whose paths point at the downloaded files.
func (c *Client) localize(ctx context.Context, v any) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			local, err := c.localize(ctx, item)
			if err != nil {
				return nil, err
			}
			out[i] = local
		}
		return out, nil
	case map[string]any:
		remotePath, _ := t["path"].(string)
		if remotePath == "" {
			return t, nil
		}
		fileURL, _ := t["url"].(string)
		if fileURL == "" {
			fileURL = c.host + c.prefix + "/file=" + remotePath
		}
		localPath, err := c.download(ctx, fileURL, remotePath)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = val
		}
		out["path"] = localPath
		return out, nil
	default:
		return v, nil
	}
}

func (c *Client) download(ctx context.Context, fileURL, remotePath string) (string, error) {
	if err := os.MkdirAll(c.downloadDir, 0o755); err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	f, err := os.CreateTemp(c.downloadDir, "result-*"+path.Ext(remotePath))
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Release removes the downloaded files referenced by a Predict reply.
// Paths outside the download directory are left alone.
func (c *Client) Release(reply any) error {
	var errs []error
	for _, p := range c.downloadedPaths(reply, nil) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) downloadedPaths(v any, acc []string) []string {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			acc = c.downloadedPaths(item, acc)
		}
	case map[string]any:
		p, _ := t["path"].(string)
		if p != "" && filepath.Dir(p) == filepath.Clean(c.downloadDir) {
			acc = append(acc, p)
		}
	}
	return acc
}
