package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
)

// Notifier announces tracks as they start.
type Notifier interface {
	NowPlaying(ctx context.Context, snapshot media.Snapshot) error
}

// Client publishes announcements to an ntfy topic.
type Client struct {
	httpClient *http.Client
	config     *Config
	endpoint   string
	logger     *zap.Logger
}

func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     cfg,
		endpoint:   strings.TrimSuffix(cfg.Server, "/") + "/" + cfg.Topic,
		logger:     logger,
	}
}

// NowPlaying publishes the track. With AttachArtwork set and artwork present,
// the cover is uploaded as the message attachment.
func (c *Client) NowPlaying(ctx context.Context, snapshot media.Snapshot) error {
	if !c.config.Enabled {
		return nil
	}

	title := "Now playing: " + snapshot.DisplayTitle()
	body := FormatNowPlaying(snapshot)

	var req *http.Request
	var err error
	if c.config.AttachArtwork && snapshot.HasArtwork && len(snapshot.Artwork) > 0 {
		// ntfy takes the text from the Message header when the body is a file.
		req, err = http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint, bytes.NewReader(snapshot.Artwork))
		if err == nil {
			req.Header.Set("Message", strings.ReplaceAll(body, "\n", `\n`))
			req.Header.Set("Filename", artworkFilename(snapshot.Artwork))
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	}
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", c.config.Priority)
	req.Header.Set("Tags", c.config.Tags)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("url", c.endpoint),
		)
		return fmt.Errorf("ntfy responded with status %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", req.Header.Get("Title")))
	return nil
}

// FormatNowPlaying renders title, artist and, when known, album on separate lines.
func FormatNowPlaying(s media.Snapshot) string {
	lines := []string{s.DisplayTitle(), s.DisplayArtist()}
	if s.Album != "" {
		lines = append(lines, s.Album)
	}
	return strings.Join(lines, "\n")
}

func artworkFilename(art []byte) string {
	switch http.DetectContentType(art) {
	case "image/png":
		return "cover.png"
	case "image/jpeg":
		return "cover.jpg"
	case "image/gif":
		return "cover.gif"
	case "image/webp":
		return "cover.webp"
	default:
		return "cover.bin"
	}
}

type NoopNotifier struct{}

func (n *NoopNotifier) NowPlaying(context.Context, media.Snapshot) error {
	return nil
}

// New returns a Client when notifications are enabled and a NoopNotifier otherwise.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
