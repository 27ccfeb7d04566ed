package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quotespeak/pkg/tools"
)

// ErrNotModified is returned when the container already is in the requested state.
var ErrNotModified = errors.New("container not modified")

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	// Socket is the docker daemon unix socket. Ignored when the http client is supplied by the caller.
	Socket string `yaml:"socket" env:"DOCKER_SOCKET_PATH"`
	// URL is the base url requests are sent to; the host is irrelevant for unix sockets.
	URL string `yaml:"url"`
}

// Client is a minimal Docker Engine API client covering container start and stop.
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

// NewUnixHTTPClient returns an http client that dials every request to socketPath.
func NewUnixHTTPClient(socketPath string, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

func (c *Client) Start(ctx context.Context, container string) error {
	return c.containerAction(ctx, container, "start")
}

func (c *Client) Stop(ctx context.Context, container string) error {
	return c.containerAction(ctx, container, "stop")
}

func (c *Client) containerAction(ctx context.Context, container, action string) error {
	start := time.Now()

	endpoint := c.cfg.URL + "/containers/" + url.PathEscape(container) + "/" + action

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.Errors.WithLabelValues(action, "transport").Inc()
		return fmt.Errorf("failed to %s container %s: %w", action, container, err)
	}
	defer tools.DrainAndClose(resp.Body)

	metrics.QueryTime.WithLabelValues(action).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return ErrNotModified
	case resp.StatusCode > 299:
		metrics.Errors.WithLabelValues(action, strconv.Itoa(resp.StatusCode)).Inc()

		respData, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to %s container %s: status code %d, err - %s", action, container, resp.StatusCode, string(respData))
	default:
		return nil
	}
}
