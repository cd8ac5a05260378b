// internal/upload/client.go
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/delivery"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
)

// PutInPath is the deposit endpoint relative to the API base URL.
const PutInPath = "/mini/api/device/putIn"

// Envelope codes.
const (
	CodeOK           = 200
	CodeUnauthorized = 401
)

var (
	ErrUnauthorized = errors.New("upload: unauthorized")
	ErrRejected     = errors.New("upload: rejected by backend")
)

// Config is the minimal runtime config the client needs.
type Config struct {
	BaseURL    string
	DeviceCode string
	Timeout    time.Duration
	// Token returns the Authorization header value, or "" for none.
	Token func() string
}

// Client submits deposits to the backend API.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
	log  zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
		log:  log.With().Str("component", "upload").Logger(),
	}
}

type putInRequest struct {
	Weight []float64 `json:"weight"`
	IMEI   string    `json:"imei"`
	Time   int64     `json:"time"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// UploadDeposit posts the weight vector and returns the backend's receipt.
// Any envelope code other than 200 is an error.
func (c *Client) UploadDeposit(ctx context.Context, weights [registers.WeightSlots]float64) (delivery.Receipt, error) {
	body, err := json.Marshal(putInRequest{
		Weight: weights[:],
		IMEI:   c.cfg.DeviceCode,
		Time:   c.now().UnixMilli(),
	})
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("upload: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+PutInPath, bytes.NewReader(body))
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("upload: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != nil {
		if tok := c.cfg.Token(); tok != "" {
			req.Header.Set("Authorization", tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("upload: post: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("upload: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return delivery.Receipt{}, fmt.Errorf("upload: http %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return delivery.Receipt{}, fmt.Errorf("upload: decode envelope: %w", err)
	}

	switch env.Code {
	case CodeOK:
	case CodeUnauthorized:
		return delivery.Receipt{}, fmt.Errorf("%w: %s", ErrUnauthorized, env.Msg)
	default:
		return delivery.Receipt{}, fmt.Errorf("%w: code=%d msg=%q", ErrRejected, env.Code, env.Msg)
	}

	var rec delivery.Receipt
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &rec); err != nil {
			return delivery.Receipt{}, fmt.Errorf("upload: decode receipt: %w", err)
		}
	}

	c.log.Debug().Float64("weight", rec.Weight).Float64("score", rec.Score).Bool("full", rec.FullInfo).Msg("deposit accepted")
	return rec, nil
}
