package rembg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

const (
	DefaultModel = "u2net"
	removePath   = "/api/remove"
)

// SessionOptions are forwarded to the inference server with every request.
// The defaults mirror the settings the service has always used.
type SessionOptions struct {
	Model               string
	AlphaMatting        bool
	ForegroundThreshold int
	BackgroundThreshold int
	ErodeSize           int
	PostProcessMask     bool
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Model:               DefaultModel,
		AlphaMatting:        true,
		ForegroundThreshold: 255,
		BackgroundThreshold: 0,
		ErodeSize:           5,
		PostProcessMask:     true,
	}
}

type HTTPConfig struct {
	Endpoint string
	Timeout  time.Duration
	Session  SessionOptions
}

// HTTPRemover posts a PNG to a rembg-compatible server and decodes the PNG it
// answers with.
type HTTPRemover struct {
	endpoint string
	session  SessionOptions
	client   *http.Client
	logger   logrus.FieldLogger
}

func NewHTTPRemover(cfg HTTPConfig, logger logrus.FieldLogger) (*HTTPRemover, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("rembg endpoint is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	session := cfg.Session
	if strings.TrimSpace(session.Model) == "" {
		session.Model = DefaultModel
	}

	return &HTTPRemover{
		endpoint: endpoint + removePath,
		session:  session,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

func (r *HTTPRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	body, contentType, err := r.buildForm(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build rembg request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "image/png")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call rembg: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rembg returned status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	out, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode rembg response: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"model":    r.session.Model,
		"duration": time.Since(start).String(),
	}).Debug("background removed")

	return out, nil
}

func (r *HTTPRemover) buildForm(img image.Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if err := imaging.Encode(part, img, imaging.PNG); err != nil {
		return nil, "", fmt.Errorf("encode rembg input: %w", err)
	}

	fields := [][2]string{
		{"model", r.session.Model},
		{"a", strconv.FormatBool(r.session.AlphaMatting)},
		{"af", strconv.Itoa(r.session.ForegroundThreshold)},
		{"ab", strconv.Itoa(r.session.BackgroundThreshold)},
		{"ae", strconv.Itoa(r.session.ErodeSize)},
		{"ppm", strconv.FormatBool(r.session.PostProcessMask)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
