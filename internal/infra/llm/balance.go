package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cohesion-org/deepseek-go"
)

// Balance is the prepaid credit left on a provider account.
type Balance struct {
	Available bool           `json:"isAvailable"`
	Entries   []BalanceEntry `json:"balances"`
}

type BalanceEntry struct {
	Currency        string `json:"currency"`
	TotalBalance    string `json:"totalBalance"`
	GrantedBalance  string `json:"grantedBalance"`
	ToppedUpBalance string `json:"toppedUpBalance"`
}

// DeepSeekAccount queries the DeepSeek account endpoints through the vendor
// SDK. The API key is looked up on every call.
type DeepSeekAccount struct {
	keys       KeySource
	httpClient deepseek.HTTPDoer
}

// NewDeepSeekAccount returns an account client. A nil httpClient gets a
// 30 second timeout.
func NewDeepSeekAccount(keys KeySource, httpClient deepseek.HTTPDoer) *DeepSeekAccount {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &DeepSeekAccount{keys: keys, httpClient: httpClient}
}

// Balance returns the account balance. HTTP error statuses come back as
// *ProviderError.
func (a *DeepSeekAccount) Balance(ctx context.Context) (*Balance, error) {
	key := ""
	if a.keys != nil {
		key = a.keys(ctx)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: deepseek", ErrNoAPIKey)
	}

	client, err := deepseek.NewClientWithOptions(key, deepseek.WithHTTPClient(a.httpClient))
	if err != nil {
		return nil, fmt.Errorf("llm: deepseek client: %w", err)
	}
	resp, err := deepseek.GetBalance(client, ctx)
	if err != nil {
		var apiErr *deepseek.APIError
		if errors.As(err, &apiErr) {
			body := apiErr.Message
			if apiErr.ResponseBody != "" {
				body = apiErr.ResponseBody
			}
			return nil, &ProviderError{Provider: "deepseek", StatusCode: apiErr.StatusCode, Body: truncateBody([]byte(body))}
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	out := &Balance{Available: resp.IsAvailable, Entries: make([]BalanceEntry, 0, len(resp.BalanceInfos))}
	for _, b := range resp.BalanceInfos {
		out.Entries = append(out.Entries, BalanceEntry{
			Currency:        b.Currency,
			TotalBalance:    b.TotalBalance,
			GrantedBalance:  b.GrantedBalance,
			ToppedUpBalance: b.ToppedUpBalance,
		})
	}
	return out, nil
}
