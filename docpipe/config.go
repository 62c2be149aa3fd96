package docpipe

import "log/slog"

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the largest input accepted, in bytes (default: 20 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// StrictLinks passes every rendered section through the link guard,
	// dropping hrefs with schemes other than http, https and mailto.
	StrictLinks bool `json:"strict_links" yaml:"strict_links"`

	// BaseDir confines file paths given to the MCP tools. Empty means any
	// readable path.
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 20 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
