// Package fc2api is the Live Stream API Client (C4): the two
// member/control-server HTTP endpoints an orchestrator consults before
// opening the control WebSocket.
package fc2api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fc2-live-dl/fc2-live-dl-go/internal/domain"
)

const (
	memberAPIURL     = "https://live.fc2.com/api/memberApi.php"
	controlServerURL = "https://live.fc2.com/api/getControlServer.php"
	clientVersion    = "2.1.0\n+[1]"
	clientType       = "pc"
	clientApp        = "browser_hls"
)

// Metadata is the immutable-per-session snapshot returned by get_meta.
type Metadata struct {
	ChannelID    string
	ChannelName  string
	Title        string
	ThumbnailURL string
	IsPublish    bool
	Version      string
}

// memberAPIResponse mirrors the envelope memberApi.php returns; it is
// served as text/javascript, which this client deliberately tolerates.
type memberAPIResponse struct {
	Data struct {
		ChannelData struct {
			ChannelID string `json:"channelid"`
			Title     string `json:"title"`
			Image     string `json:"image"`
			IsPublish int    `json:"is_publish"`
			Version   string `json:"version"`
		} `json:"channel_data"`
		ProfileData struct {
			Name string `json:"name"`
		} `json:"profile_data"`
	} `json:"data"`
}

type controlServerResponse struct {
	URL          string `json:"url"`
	ControlToken string `json:"control_token"`
}

// Config configures a Client. HTTPClient and Logger default when nil.
type Config struct {
	ChannelID  string
	HTTPClient *http.Client
	Jar        http.CookieJar
	Logger     *slog.Logger
}

// Client is the Live Stream API Client (C4).
type Client struct {
	channelID string
	http      *http.Client
	log       *slog.Logger

	meta *Metadata
}

// New builds a Client for one channel.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Jar != nil {
		httpClient.Jar = cfg.Jar
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{channelID: cfg.ChannelID, http: httpClient, log: logger}
}

// GetMeta fetches channel metadata, or returns the cached snapshot
// unless refresh is requested (spec.md §4.1, §3).
func (c *Client) GetMeta(ctx context.Context, refresh bool) (Metadata, error) {
	if c.meta != nil && !refresh {
		return *c.meta, nil
	}

	form := url.Values{
		"channel":  {"1"},
		"profile":  {"1"},
		"user":     {"1"},
		"streamid": {c.channelID},
	}
	body, err := c.post(ctx, memberAPIURL, form)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch channel metadata: %w", err)
	}

	var parsed memberAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("decode channel metadata: %w", err)
	}

	meta := Metadata{
		ChannelID:    parsed.Data.ChannelData.ChannelID,
		ChannelName:  parsed.Data.ProfileData.Name,
		Title:        parsed.Data.ChannelData.Title,
		ThumbnailURL: parsed.Data.ChannelData.Image,
		IsPublish:    parsed.Data.ChannelData.IsPublish > 0,
		Version:      parsed.Data.ChannelData.Version,
	}
	c.meta = &meta
	return meta, nil
}

// IsOnline reports whether the channel is currently live.
func (c *Client) IsOnline(ctx context.Context, refresh bool) (bool, error) {
	meta, err := c.GetMeta(ctx, refresh)
	if err != nil {
		return false, err
	}
	return meta.IsPublish, nil
}

// ortknSource supplies the l_ortkn cookie value carried by the jar, if any.
type ortknSource interface {
	OrtknValue() string
}

// GetWebsocketURL requires metadata already fetched. It negotiates the
// control server and returns the URL to dial, with the control token
// appended as a query parameter (spec.md §4.1).
func (c *Client) GetWebsocketURL(ctx context.Context, jar ortknSource) (string, error) {
	meta, err := c.GetMeta(ctx, false)
	if err != nil {
		return "", err
	}
	if !meta.IsPublish {
		return "", domain.ErrNotOnline
	}

	orz := ""
	if jar != nil {
		orz = jar.OrtknValue()
	}

	form := url.Values{
		"channel_id":      {c.channelID},
		"mode":            {"play"},
		"orz":             {orz},
		"channel_version": {meta.Version},
		"client_version":  {clientVersion},
		"client_type":     {clientType},
		"client_app":      {clientApp},
		"ipv6":            {""},
	}
	body, err := c.post(ctx, controlServerURL, form)
	if err != nil {
		return "", fmt.Errorf("negotiate control server: %w", err)
	}

	var parsed controlServerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode control server response: %w", err)
	}

	fc2ID, decodeErr := decodeControlTokenFC2ID(parsed.ControlToken)
	if decodeErr != nil {
		c.log.WarnContext(ctx, "could not decode control token payload", "error", decodeErr)
	} else if fc2ID == "" {
		c.log.InfoContext(ctx, "control token carries anonymous fc2_id")
	} else {
		c.log.InfoContext(ctx, "control token fc2_id present")
	}

	return fmt.Sprintf("%s?control_token=%s", parsed.URL, parsed.ControlToken), nil
}

// decodeControlTokenFC2ID extracts the fc2_id claim from the control
// token, treated as a JWT whose payload is the middle, dot-separated
// segment (spec.md §3, L2). The token is opaque to us beyond this one
// field and there is no key to verify it against, so ParseUnverified
// is the correct tool rather than a signature-checking parse.
func decodeControlTokenFC2ID(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", err
	}
	fc2ID, _ := claims["fc2_id"].(string)
	return fc2ID, nil
}

// WaitForOnline polls IsOnline every interval until the channel is
// live or ctx is cancelled (spec.md §4.1).
func (c *Client) WaitForOnline(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		online, err := c.IsOnline(ctx, true)
		if err != nil {
			return err
		}
		if online {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strconv.Quote(string(body)))
	}
	return body, nil
}
