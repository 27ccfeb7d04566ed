package ffmpeg

type Config struct {
	Path string `yaml:"path"`
	// Volume is applied as an ffmpeg volume filter when set to anything but 0 or 1.
	Volume float64 `yaml:"volume"`
}

type Client struct {
	cfg *Config
}

func New(cfg *Config) *Client {
	return &Client{
		cfg: cfg,
	}
}

func (c *Client) binary() string {
	if c == nil || c.cfg == nil || c.cfg.Path == "" {
		return "ffmpeg"
	}
	return c.cfg.Path
}
