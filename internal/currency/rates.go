package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Fi44er/casino_ledger/utils"
	"github.com/shopspring/decimal"
)

type StaticRates map[string]decimal.Decimal

func (s StaticRates) Rates(context.Context) (map[string]decimal.Decimal, error) {
	return s, nil
}

type serviceError struct {
	StatusCode int
	Message    string
}

func (e *serviceError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// exchangeRateResponse is the payload of open.er-api.com style endpoints.
type exchangeRateResponse struct {
	Result         string             `json:"result"`
	Rates          map[string]float64 `json:"rates"`
	TimeNextUpdate int64              `json:"time_next_update_unix"`
}

// CachedRates fetches USD based rates over HTTP and keeps them until the
// provider's announced next update. Failures fall back to the static table.
type CachedRates struct {
	httpClient *http.Client
	url        string
	fallback   RateProvider
	logger     *utils.Logger
	now        func() time.Time

	mu             sync.Mutex
	rates          map[string]decimal.Decimal
	nextUpdateUnix int64
}

func NewCachedRates(url string, fallback RateProvider, logger *utils.Logger) *CachedRates {
	return &CachedRates{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        url,
		fallback:   fallback,
		logger:     logger,
		now:        time.Now,
	}
}

func (c *CachedRates) Rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rates != nil && c.now().Unix() < c.nextUpdateUnix {
		return c.rates, nil
	}

	rates, next, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warnf("Failed to refresh exchange rates, using fallback: %v", err)
		if c.rates != nil {
			return c.rates, nil
		}
		return c.fallback.Rates(ctx)
	}

	c.rates = rates
	c.nextUpdateUnix = next
	c.logger.Infof("Exchange rates updated. Next update at: %s", time.Unix(next, 0))
	return c.rates, nil
}

func (c *CachedRates) fetch(ctx context.Context) (map[string]decimal.Decimal, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to exchange rate API failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &serviceError{
			StatusCode: resp.StatusCode,
			Message:    "bad response from exchange rate API",
		}
	}

	var data exchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, 0, fmt.Errorf("failed to parse exchange rate response: %w", err)
	}
	if data.Result != "success" {
		return nil, 0, fmt.Errorf("exchange rate API returned an error status: %s", data.Result)
	}

	rates := make(map[string]decimal.Decimal, len(data.Rates))
	for code, rate := range data.Rates {
		if rate > 0 {
			rates[Normalize(code)] = decimal.NewFromFloat(rate)
		}
	}
	return rates, data.TimeNextUpdate, nil
}
