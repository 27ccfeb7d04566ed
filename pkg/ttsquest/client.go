package ttsquest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quotespeak/pkg/tools"
)

var ErrNoAPIKey = errors.New("tts.quest api key is not configured")

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key" env:"VOICEVOX_API_KEY"`
}

type Client struct {
	cfg        *Config
	httpClient HTTPClient
}

func New(httpClient HTTPClient, cfg *Config) *Client {
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

// Points is the remaining budget on the metered api.
type Points struct {
	Points       int     `json:"points"`
	ResetInHours float64 `json:"resetInHours"`
}

type Request struct {
	Text    string
	Speaker int

	Pitch           float64
	IntonationScale float64
	Speed           float64
}

// NewRequest fills in the neutral prosody the api expects when nothing else is requested.
func NewRequest(text string, speaker int) *Request {
	return &Request{
		Text:    text,
		Speaker: speaker,

		Pitch:           0,
		IntonationScale: 1,
		Speed:           1,
	}
}

type apiError struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *Client) Points(ctx context.Context) (*Points, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	start := time.Now()

	query := url.Values{}
	query.Set("key", c.cfg.APIKey)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/api/?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.Errors.WithLabelValues("points", "transport").Inc()
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		metrics.Errors.WithLabelValues("points", strconv.Itoa(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("status code %d, err - %s", resp.StatusCode, string(respData))
	}

	var body struct {
		Success      *bool    `json:"success"`
		ErrorMessage string   `json:"errorMessage"`
		Points       *int     `json:"points"`
		ResetInHours *float64 `json:"resetInHours"`
	}
	if err := json.Unmarshal(respData, &body); err != nil {
		metrics.Errors.WithLabelValues("points", "decode").Inc()
		return nil, fmt.Errorf("failed to unmarshal points: %w", err)
	}

	// failures such as an invalid key come back as json with a 200
	if (body.Success != nil && !*body.Success) || body.Points == nil {
		metrics.Errors.WithLabelValues("points", "api").Inc()

		msg := body.ErrorMessage
		if msg == "" {
			msg = string(respData)
		}
		return nil, fmt.Errorf("points query failed: %s", msg)
	}

	points := &Points{Points: *body.Points}
	if body.ResetInHours != nil {
		points.ResetInHours = *body.ResetInHours
	}

	metrics.QueryTime.WithLabelValues("points").Observe(time.Since(start).Seconds())
	metrics.Points.Set(float64(points.Points))

	return points, nil
}

// Synthesize reads the full audio body before returning so that a failure halfway
// through the download surfaces here rather than during playback.
func (c *Client) Synthesize(ctx context.Context, req *Request) (io.ReadCloser, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	start := time.Now()

	query := url.Values{}
	query.Set("text", req.Text)
	query.Set("key", c.cfg.APIKey)
	query.Set("speaker", strconv.Itoa(req.Speaker))
	query.Set("pitch", strconv.FormatFloat(req.Pitch, 'f', -1, 64))
	query.Set("intonationScale", strconv.FormatFloat(req.IntonationScale, 'f', -1, 64))
	query.Set("speed", strconv.FormatFloat(req.Speed, 'f', -1, 64))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/voicevox/audio/?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.Errors.WithLabelValues("synthesize", "transport").Inc()
		return nil, fmt.Errorf("failed to get audio: %w", err)
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.Errors.WithLabelValues("synthesize", "read").Inc()
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		metrics.Errors.WithLabelValues("synthesize", strconv.Itoa(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("status code %d, err - %s", resp.StatusCode, string(respData))
	}

	// errors such as an exhausted budget come back as json with a 200
	if tools.IsJSON(resp.Header.Get("Content-Type")) {
		metrics.Errors.WithLabelValues("synthesize", "api").Inc()

		apiErr := &apiError{}
		if err := json.Unmarshal(respData, apiErr); err == nil && apiErr.ErrorMessage != "" {
			return nil, fmt.Errorf("api error: %s", apiErr.ErrorMessage)
		}
		return nil, fmt.Errorf("unexpected json response: %s", string(respData))
	}

	if len(respData) == 0 {
		metrics.Errors.WithLabelValues("synthesize", "empty").Inc()
		return nil, fmt.Errorf("empty audio response")
	}

	metrics.QueryTime.WithLabelValues("synthesize").Observe(time.Since(start).Seconds())

	return io.NopCloser(bytes.NewReader(respData)), nil
}
