// Package media talks to the remote video-processing API: it provisions
// direct upload slots, transfers bytes, polls for processing completion, and
// resolves viewer-facing playback URLs.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"coursecast/internal/apperr"
)

// Service is the contract the ingestion workflow depends on.
type Service interface {
	CreateUploadSlot(ctx context.Context, premium bool) (UploadSlot, error)
	TransferBytes(ctx context.Context, uploadURL string, content []byte, contentType string) error
	AwaitProcessing(ctx context.Context, uploadID string) (Asset, error)
	ResolvePlaybackURL(premium bool, playbackID string) (string, error)
}

// UploadSlot is a remote-issued destination for a direct byte upload.
type UploadSlot struct {
	ID  string
	URL string
}

// Asset describes a processed video as reported by the remote API.
type Asset struct {
	ID         string
	PlaybackID string
	Duration   float64
}

const (
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollAttempts = 60
	defaultUploadTimeout   = 3600
	defaultCORSOrigin      = "*"
	defaultPlaybackBaseURL = "https://player.mux.com"
	defaultStreamBaseURL   = "https://stream.mux.com"
	defaultControlTimeout  = 30 * time.Second
	defaultTransferTimeout = 5 * time.Minute
)

// Config configures the remote media client. BaseURL, TokenID, and
// TokenSecret are required; everything else has a sensible default.
type Config struct {
	BaseURL     string
	TokenID     string
	TokenSecret string

	// HTTPClient serves control-plane calls (slot creation, polling).
	// TransferClient serves the long-running byte upload. Both default to
	// clients with call-class timeouts.
	HTTPClient     *http.Client
	TransferClient *http.Client

	PollInterval    time.Duration
	MaxPollAttempts int

	// UploadTimeout is the server-side processing timeout, in seconds,
	// requested when creating an upload slot.
	UploadTimeout int
	CORSOrigin    string

	PlaybackBaseURL string
	StreamBaseURL   string
	PlaybackTTL     time.Duration
	Signer          PlaybackSigner

	Logger *slog.Logger
}

// Client implements Service against a Mux-style REST API authenticated with a
// basic credential pair.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string

	httpClient     *http.Client
	transferClient *http.Client

	pollInterval    time.Duration
	maxPollAttempts int

	uploadTimeout int
	corsOrigin    string

	playbackBaseURL string
	streamBaseURL   string
	playbackTTL     time.Duration
	signer          PlaybackSigner

	logger *slog.Logger
}

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("media base URL is required")
	}
	if strings.TrimSpace(cfg.TokenID) == "" || cfg.TokenSecret == "" {
		return nil, fmt.Errorf("media credentials are required")
	}
	client := &Client{
		baseURL:         baseURL,
		tokenID:         cfg.TokenID,
		tokenSecret:     cfg.TokenSecret,
		httpClient:      cfg.HTTPClient,
		transferClient:  cfg.TransferClient,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		uploadTimeout:   cfg.UploadTimeout,
		corsOrigin:      cfg.CORSOrigin,
		playbackBaseURL: strings.TrimRight(cfg.PlaybackBaseURL, "/"),
		streamBaseURL:   strings.TrimRight(cfg.StreamBaseURL, "/"),
		playbackTTL:     cfg.PlaybackTTL,
		signer:          cfg.Signer,
		logger:          cfg.Logger,
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultControlTimeout}
	}
	if client.transferClient == nil {
		client.transferClient = &http.Client{Timeout: defaultTransferTimeout}
	}
	if client.pollInterval <= 0 {
		client.pollInterval = defaultPollInterval
	}
	if client.maxPollAttempts <= 0 {
		client.maxPollAttempts = defaultMaxPollAttempts
	}
	if client.uploadTimeout <= 0 {
		client.uploadTimeout = defaultUploadTimeout
	}
	if client.corsOrigin == "" {
		client.corsOrigin = defaultCORSOrigin
	}
	if client.playbackBaseURL == "" {
		client.playbackBaseURL = defaultPlaybackBaseURL
	}
	if client.streamBaseURL == "" {
		client.streamBaseURL = defaultStreamBaseURL
	}
	if client.playbackTTL <= 0 {
		client.playbackTTL = DefaultPlaybackTTL
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}
	return client, nil
}

type createUploadRequest struct {
	Timeout          int              `json:"timeout"`
	CORSOrigin       string           `json:"cors_origin"`
	NewAssetSettings newAssetSettings `json:"new_asset_settings"`
}

type newAssetSettings struct {
	PlaybackPolicy []string `json:"playback_policy"`
}

type uploadPayload struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id"`
}

type assetPayload struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	Duration    float64      `json:"duration"`
	PlaybackIDs []playbackID `json:"playback_ids"`
}

type playbackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// CreateUploadSlot requests a direct upload slot. Premium courses get a
// signed playback policy so the resulting asset can only be streamed with a
// token; everything else is public.
func (c *Client) CreateUploadSlot(ctx context.Context, premium bool) (UploadSlot, error) {
	policy := "public"
	if premium {
		policy = "signed"
	}
	payload := createUploadRequest{
		Timeout:          c.uploadTimeout,
		CORSOrigin:       c.corsOrigin,
		NewAssetSettings: newAssetSettings{PlaybackPolicy: []string{policy}},
	}
	var slot uploadPayload
	if err := c.postJSON(ctx, c.baseURL+"/uploads", payload, &slot); err != nil {
		return UploadSlot{}, err
	}
	if slot.ID == "" || slot.URL == "" {
		return UploadSlot{}, apperr.New(apperr.Internal, "upload slot response missing id or url")
	}
	return UploadSlot{ID: slot.ID, URL: slot.URL}, nil
}

// TransferBytes uploads the raw video content to the slot URL. The content is
// a fully buffered byte slice, so the caller's source is never consumed past
// a restart point.
func (c *Client) TransferBytes(ctx context.Context, uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return apperr.Wrapf(apperr.Internal, err, "build upload request")
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(content))
	resp, err := c.transferClient.Do(req)
	if err != nil {
		return apperr.Wrapf(apperr.Internal, err, "upload video bytes")
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Newf(apperr.ExternalService, "upload video bytes: %s: %s", resp.Status, readErrorBody(resp.Body))
	}
	return nil
}

// AwaitProcessing polls the upload slot until the remote pipeline reports a
// ready asset, then returns the asset id, playback id, and duration. The loop
// sleeps pollInterval between attempts and gives up after maxPollAttempts.
// Transient poll errors are swallowed and retried except on the final
// attempt, where they propagate.
func (c *Client) AwaitProcessing(ctx context.Context, uploadID string) (Asset, error) {
	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Asset{}, apperr.Wrapf(apperr.Internal, ctx.Err(), "await asset processing")
		case <-time.After(c.pollInterval):
		}

		upload, err := c.getUpload(ctx, uploadID)
		if err != nil {
			if attempt == c.maxPollAttempts {
				return Asset{}, err
			}
			c.logger.Debug("upload status poll failed, retrying", "upload_id", uploadID, "attempt", attempt, "error", err)
			continue
		}
		if upload.Status != "asset_created" || upload.AssetID == "" {
			continue
		}

		asset, err := c.getAsset(ctx, upload.AssetID)
		if err != nil {
			if attempt == c.maxPollAttempts {
				return Asset{}, err
			}
			c.logger.Debug("asset status poll failed, retrying", "asset_id", upload.AssetID, "attempt", attempt, "error", err)
			continue
		}
		if asset.Status != "ready" {
			continue
		}
		// Ready is terminal: a missing field here is a payload defect, not
		// something more polling will fix.
		if asset.Duration <= 0 {
			return Asset{}, apperr.New(apperr.Internal, "asset processing completed but duration is missing")
		}
		if len(asset.PlaybackIDs) == 0 || asset.PlaybackIDs[0].ID == "" {
			return Asset{}, apperr.New(apperr.Internal, "asset processing completed but playback id is missing")
		}
		return Asset{ID: upload.AssetID, PlaybackID: asset.PlaybackIDs[0].ID, Duration: asset.Duration}, nil
	}
	return Asset{}, apperr.New(apperr.Internal, "asset processing timed out")
}

// ResolvePlaybackURL derives the streaming URL for a playback id. Public
// content maps deterministically onto the player base URL; premium content
// gets a time-boxed signed token appended to the stream URL.
func (c *Client) ResolvePlaybackURL(premium bool, playbackID string) (string, error) {
	if !premium {
		return fmt.Sprintf("%s/%s", c.playbackBaseURL, playbackID), nil
	}
	if c.signer == nil {
		return "", apperr.New(apperr.Internal, "playback signer is not configured")
	}
	token, err := c.signer.Sign(playbackID, c.playbackTTL)
	if err != nil {
		return "", apperr.Wrapf(apperr.Internal, err, "sign playback token")
	}
	return fmt.Sprintf("%s/%s.m3u8?token=%s", c.streamBaseURL, playbackID, token), nil
}

func (c *Client) getUpload(ctx context.Context, uploadID string) (uploadPayload, error) {
	var payload uploadPayload
	if err := c.getJSON(ctx, fmt.Sprintf("%s/uploads/%s", c.baseURL, uploadID), &payload); err != nil {
		return uploadPayload{}, err
	}
	return payload, nil
}

func (c *Client) getAsset(ctx context.Context, assetID string) (assetPayload, error) {
	var payload assetPayload
	if err := c.getJSON(ctx, fmt.Sprintf("%s/assets/%s", c.baseURL, assetID), &payload); err != nil {
		return assetPayload{}, err
	}
	return payload, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) postJSON(ctx context.Context, url string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrapf(apperr.Internal, err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrapf(apperr.Internal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) getJSON(ctx context.Context, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrapf(apperr.Internal, err, "build request")
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrapf(apperr.Internal, err, "%s %s", req.Method, req.URL.Path)
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Newf(apperr.ExternalService, "%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, readErrorBody(resp.Body))
	}
	if dest == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperr.Wrapf(apperr.Internal, err, "decode %s %s response", req.Method, req.URL.Path)
	}
	if len(env.Data) == 0 {
		return apperr.Newf(apperr.Internal, "%s %s: response missing data", req.Method, req.URL.Path)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return apperr.Wrapf(apperr.Internal, err, "decode %s %s payload", req.Method, req.URL.Path)
	}
	return nil
}

func readErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return strings.TrimSpace(string(data))
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

var _ Service = (*Client)(nil)
