package venue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"solana-intent-bot/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// assetListRetryDelay is how long to wait before retrying a supported-asset
// fetch that came back empty due to a transient failure.
const assetListRetryDelay = 5 * time.Second

// ErrAssetNotFound is returned when an asset does not resolve to a venue account.
var ErrAssetNotFound = errors.New("asset not found on venue")

// RestClientInterface defines the interface for the order-dispatch venue client.
type RestClientInterface interface {
	SubmitOrder(ctx context.Context, fromAsset, toAsset string, amount float64, maxSlippageBps int) (string, error)
	GetAccountInfo(ctx context.Context, assetID string) (*AccountInfo, error)
	GetTransactionDetails(ctx context.Context, signature string) (*TransactionDetails, error)
	GetSupportedAssets(ctx context.Context) ([]AssetInfo, error)
}

// RestClient is a client for the venue's REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new venue REST API client.
func NewRestClient(cfg *config.Venue, logger *zap.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json")
	if cfg.ApiKey != "" {
		client.SetHeader("X-API-KEY", cfg.ApiKey)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		logger:  logger.Named("venue"),
		limiter: limiter,
	}
}

// AccountInfo is the venue's metadata for one tradable asset.
type AccountInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AssetInfo is one entry of the venue's supported-asset list.
type AssetInfo struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

// TransactionDetails holds post-trade metrics looked up by signature.
type TransactionDetails struct {
	Signature   string  `json:"signature"`
	FeeLamports uint64  `json:"fee_lamports"`
	Price       float64 `json:"price"`
	PriceImpact float64 `json:"price_impact"`
}

type submitOrderRequest struct {
	FromAsset      string  `json:"from_asset"`
	ToAsset        string  `json:"to_asset"`
	Amount         float64 `json:"amount"`
	MaxSlippageBps int     `json:"max_slippage_bps"`
}

type submitOrderResponse struct {
	Signature string `json:"signature"`
}

// SubmitOrder dispatches one swap order and returns the transaction signature.
func (c *RestClient) SubmitOrder(ctx context.Context, fromAsset, toAsset string, amount float64, maxSlippageBps int) (string, error) {
	body := submitOrderRequest{
		FromAsset:      fromAsset,
		ToAsset:        toAsset,
		Amount:         amount,
		MaxSlippageBps: maxSlippageBps,
	}

	req := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&submitOrderResponse{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/orders", req)
	if err != nil {
		c.logger.Error("Failed to submit order",
			zap.Error(err),
			zap.String("from_asset", fromAsset),
			zap.String("to_asset", toAsset),
		)
		return "", fmt.Errorf("failed to submit order: %w", err)
	}

	result := resp.Result().(*submitOrderResponse)
	c.logger.Info("Order submitted", zap.String("signature", result.Signature))
	return result.Signature, nil
}

// GetAccountInfo resolves an asset symbol or address to venue metadata.
// Returns ErrAssetNotFound when the venue does not know the asset.
func (c *RestClient) GetAccountInfo(ctx context.Context, assetID string) (*AccountInfo, error) {
	var info AccountInfo

	req := c.client.R().
		SetContext(ctx).
		SetResult(&info)

	resp, err := c.doRequest(ctx, http.MethodGet, "/accounts/"+assetID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info for %s: %w", assetID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrAssetNotFound
	}

	return resp.Result().(*AccountInfo), nil
}

// GetTransactionDetails fetches fee and price metrics for an executed transaction.
func (c *RestClient) GetTransactionDetails(ctx context.Context, signature string) (*TransactionDetails, error) {
	var details TransactionDetails

	req := c.client.R().
		SetContext(ctx).
		SetResult(&details)

	resp, err := c.doRequest(ctx, http.MethodGet, "/transactions/"+signature, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction details for %s: %w", signature, err)
	}

	return resp.Result().(*TransactionDetails), nil
}

// GetSupportedAssets fetches the venue's tradable asset list. A transient
// failure that leaves zero usable assets is retried once after a fixed delay.
func (c *RestClient) GetSupportedAssets(ctx context.Context) ([]AssetInfo, error) {
	assets, err := c.fetchSupportedAssets(ctx)
	if err == nil && len(assets) > 0 {
		return assets, nil
	}

	c.logger.Warn("Supported-asset fetch returned no usable data, retrying after delay",
		zap.Duration("delay", assetListRetryDelay),
		zap.Error(err),
	)

	select {
	case <-time.After(assetListRetryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	assets, err = c.fetchSupportedAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get supported assets: %w", err)
	}
	return assets, nil
}

func (c *RestClient) fetchSupportedAssets(ctx context.Context) ([]AssetInfo, error) {
	var assets []AssetInfo

	req := c.client.R().
		SetContext(ctx).
		SetResult(&assets)

	resp, err := c.doRequest(ctx, http.MethodGet, "/assets", req)
	if err != nil {
		return nil, err
	}

	return *resp.Result().(*[]AssetInfo), nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// A 404 is an answer, not a failure; let the caller interpret it.
		if err == nil && resp.StatusCode() == http.StatusNotFound {
			return resp, nil
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() > 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
