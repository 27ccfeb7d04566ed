package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quotespeak/pkg/tools"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	URL string `yaml:"url" env:"VOICEVOX_URL"`
}

// Client talks to a self-hosted VOICEVOX engine.
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

// AudioQuery returns the engine's synthesis plan for text, passed back verbatim to Synthesis.
func (c *Client) AudioQuery(ctx context.Context, text string, speaker int) (json.RawMessage, error) {
	start := time.Now()

	query := url.Values{}
	query.Set("text", text)
	query.Set("speaker", strconv.Itoa(speaker))

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/audio_query?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.Errors.WithLabelValues("audio_query", "transport").Inc()
		return nil, fmt.Errorf("failed to post audio_query: %w", err)
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		metrics.Errors.WithLabelValues("audio_query", strconv.Itoa(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("status code %d, err - %s", resp.StatusCode, string(respData))
	}

	if !json.Valid(respData) {
		metrics.Errors.WithLabelValues("audio_query", "decode").Inc()
		return nil, fmt.Errorf("audio_query returned invalid json")
	}

	metrics.QueryTime.WithLabelValues("audio_query").Observe(time.Since(start).Seconds())

	return json.RawMessage(respData), nil
}

// Synthesis renders a plan from AudioQuery into wav bytes.
func (c *Client) Synthesis(ctx context.Context, plan json.RawMessage, speaker int) (io.ReadCloser, error) {
	start := time.Now()

	query := url.Values{}
	query.Set("speaker", strconv.Itoa(speaker))

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/synthesis?"+query.Encode(), bytes.NewReader(plan))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Add("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.Errors.WithLabelValues("synthesis", "transport").Inc()
		return nil, fmt.Errorf("failed to post synthesis: %w", err)
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		metrics.Errors.WithLabelValues("synthesis", strconv.Itoa(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("status code %d, err - %s", resp.StatusCode, string(respData))
	}

	metrics.QueryTime.WithLabelValues("synthesis").Observe(time.Since(start).Seconds())

	return io.NopCloser(bytes.NewReader(respData)), nil
}
