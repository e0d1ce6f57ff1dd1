package rest

// client.go: cliente HTTP genérico de venue con rate limiting, retries y
// firma HMAC de los endpoints privados.
//
// Endpoints (JSON, números como strings decimales):
//   GET    /api/v1/symbols                      público
//   GET    /api/v1/orderbook?symbol=&depth=     público
//   GET    /api/v1/balances                     firmado
//   POST   /api/v1/orders                       firmado
//   GET    /api/v1/orders/{id}?symbol=          firmado
//   DELETE /api/v1/orders/{id}?symbol=          firmado

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	headerKey       = "X-API-KEY"
	headerTimestamp = "X-TIMESTAMP"
	headerSignature = "X-SIGNATURE"

	maxRetries       = 3
	defaultRetryWait = 500 * time.Millisecond
	defaultTimeout   = 10 * time.Second
)

// Config configura un venue REST.
type Config struct {
	Name      string
	BaseURL   string
	APIKey    string
	APISecret string
	RateLimit float64 // requests/s; 0 = sin límite
	Timeout   time.Duration
	RetryWait time.Duration // base del backoff exponencial
}

// Client es un venue REST. Implementa ports.Exchange.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// APIError es una respuesta 4xx del venue. No se reintenta.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.Status, e.Body)
}

// New crea el cliente. BaseURL es obligatorio.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest.New %s: base url is required", cfg.Name)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := int(math.Max(1, math.Floor(cfg.RateLimit/10)))
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		now:     time.Now,
	}, nil
}

// Name implementa ports.Exchange.
func (c *Client) Name() string { return c.cfg.Name }

// HasCredentials indica si el venue puede operar endpoints privados.
func (c *Client) HasCredentials() bool {
	return c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

// sign devuelve la firma hex de ts+METHOD+path+body con el secret del venue.
func (c *Client) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(ts + strings.ToUpper(method) + path + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// do ejecuta la request con rate limiting y retries. Los headers de firma se
// regeneran en cada intento para que el timestamp no caduque. Un POST crea
// una orden y nunca se reintenta: el primer fallo vuelve como error y el
// estado real lo resuelve la reconciliación.
func (c *Client) do(ctx context.Context, method, path string, signed bool, reqBody, out any) error {
	var body string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		body = string(b)
	}
	if signed && !c.HasCredentials() {
		return fmt.Errorf("%s %s: missing api credentials", method, path)
	}

	retries := maxRetries
	if method == http.MethodPost {
		retries = 0
	}

	for attempt := 0; attempt <= retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if signed {
			ts := strconv.FormatInt(c.now().UnixMilli(), 10)
			req.Header.Set(headerKey, c.cfg.APIKey)
			req.Header.Set(headerTimestamp, ts)
			req.Header.Set(headerSignature, c.sign(ts, method, path, body))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == retries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("rest: rate limited by venue", "venue", c.cfg.Name, "attempt", attempt+1)
			if attempt == retries {
				return fmt.Errorf("rate limited after %d retries", retries)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			if attempt == retries {
				return fmt.Errorf("server error %d after %d retries: %s", resp.StatusCode, retries, respBody)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			return &APIError{Status: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", retries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.RetryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
