// Package payway talks to the PayWay card-processing API.
package payway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/utils"
)

// Client is a PayWay API client. It owns its token cache; separate clients
// never share tokens unless given the same cache.
type Client struct {
	url      string
	client   *http.Client
	log      *logrus.Logger
	tokens   TokenCache
	leadTime time.Duration
	now      func() time.Time
}

// NewClient initializes a new PayWay client. A nil cache means an in-memory one.
func NewClient(url string, leadTime time.Duration, tokens TokenCache, log *logrus.Logger) *Client {
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	return &Client{
		url: strings.TrimRight(url, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:      log,
		tokens:   tokens,
		leadTime: leadTime,
		now:      time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // Seconds
}

type plansResponse struct {
	Plans []struct {
		CardCode     string          `json:"card_code"`
		Installments int             `json:"installments"`
		InterestRate decimal.Decimal `json:"interest_rate"`
	} `json:"plans"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FetchPlans returns every installment plan the provider publishes for bank
func (c *Client) FetchPlans(ctx context.Context, bank models.Bank) ([]models.ExternalInstallmentPlan, error) {
	var resp plansResponse
	if err := c.call(ctx, bank, http.MethodGet, "/installments/plans", nil, &resp); err != nil {
		return nil, err
	}

	plans := make([]models.ExternalInstallmentPlan, 0, len(resp.Plans))
	for _, p := range resp.Plans {
		plans = append(plans, models.ExternalInstallmentPlan{
			CardCode:     p.CardCode,
			Installments: p.Installments,
			InterestRate: p.InterestRate,
		})
	}
	c.log.Debugf("PayWay returned %d plans for bank %s", len(plans), bank.Code)
	return plans, nil
}

// CalculateInstallments prices one purchase with the provider
func (c *Client) CalculateInstallments(ctx context.Context, bank models.Bank, req models.ExternalCalculationRequest) (models.ExternalCalculation, error) {
	var out models.ExternalCalculation
	if err := c.call(ctx, bank, http.MethodPost, "/installments/calculate", req, &out); err != nil {
		return models.ExternalCalculation{}, err
	}
	return out, nil
}

// call performs an authenticated request, refreshing the token once if the
// provider rejects it
func (c *Client) call(ctx context.Context, bank models.Bank, method, path string, body, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := c.token(ctx, bank)
		if err != nil {
			return err
		}
		err = c.do(ctx, method, path, body, out, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		})
		var perr *models.ProviderError
		if attempt == 0 && errors.As(err, &perr) && perr.Code == strconv.Itoa(http.StatusUnauthorized) {
			c.log.Infof("PayWay rejected token for bank %s, refreshing", bank.Code)
			_ = c.tokens.Delete(ctx, c.cacheKey(bank))
			continue
		}
		return err
	}
}

// token returns a cached token or performs the signed handshake
func (c *Client) token(ctx context.Context, bank models.Bank) (string, error) {
	key := c.cacheKey(bank)
	if t, ok := c.tokens.Get(ctx, key); ok && t.usable(c.now(), c.leadTime) {
		return t.AccessToken, nil
	}

	creds := bank.APICredentials
	if creds == nil || creds.APIKey == "" || creds.APISecret == "" {
		return "", &models.ProviderError{Code: "missing_credentials", Message: fmt.Sprintf("bank %s has no API credentials", bank.Code)}
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	nonce := uuid.NewString()
	signature := utils.GenerateHMAC(creds.APISecret, creds.APIKey, timestamp, nonce)

	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/token", map[string]string{"site_id": creds.SiteID}, &resp, func(req *http.Request) {
		req.Header.Set("X-Api-Key", creds.APIKey)
		req.Header.Set("X-Timestamp", timestamp)
		req.Header.Set("X-Nonce", nonce)
		req.Header.Set("X-Signature", signature)
	})
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &models.ProviderError{Code: "invalid_token", Message: "handshake returned no token"}
	}

	t := Token{AccessToken: resp.AccessToken, ExpiresAt: c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)}
	if err := c.tokens.Set(ctx, key, t); err != nil {
		c.log.Warnf("Failed to cache PayWay token for bank %s: %v", bank.Code, err)
	}
	return t.AccessToken, nil
}

func (c *Client) cacheKey(bank models.Bank) string {
	return fmt.Sprintf("%s|%d", c.url, bank.ID)
}

// do sends a JSON request and decodes the JSON response into out
func (c *Client) do(ctx context.Context, method, path string, body, out any, decorate func(*http.Request)) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	decorate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return &models.ProviderError{Code: "unreachable", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.ProviderError{Code: "unreachable", Message: "failed to read response", Err: err}
	}
	c.log.Debugf("PayWay %s %s: %d %s", method, path, resp.StatusCode, string(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if json.Unmarshal(raw, &e) != nil || e.Code == "" {
			e.Code = strconv.Itoa(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			e.Code = strconv.Itoa(http.StatusUnauthorized)
		}
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &models.ProviderError{Code: e.Code, Message: e.Message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &models.ProviderError{Code: "invalid_response", Message: "failed to decode response", Err: err}
	}
	return nil
}
