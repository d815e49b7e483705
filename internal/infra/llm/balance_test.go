package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// redirectTransport sends every request to target, keeping the path.
type redirectTransport struct {
	target *url.URL
	seen   []*http.Request
}

func (r *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.seen = append(r.seen, req)
	out := req.Clone(req.Context())
	out.URL.Scheme = r.target.Scheme
	out.URL.Host = r.target.Host
	out.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func newBalanceServer(t *testing.T, status int, body string) (*DeepSeekAccount, *redirectTransport, func(string)) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/balance" || r.Method != http.MethodGet {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	target, _ := url.Parse(srv.URL)
	rt := &redirectTransport{target: target}
	key := "sk-test"
	acct := NewDeepSeekAccount(func(context.Context) string { return key }, &http.Client{Transport: rt})
	return acct, rt, func(k string) { key = k }
}

func TestDeepSeekAccount_Balance(t *testing.T) {
	t.Parallel()

	acct, rt, _ := newBalanceServer(t, http.StatusOK, `{"is_available":true,"balance_infos":[{"currency":"CNY","total_balance":"110.00","granted_balance":"10.00","topped_up_balance":"100.00"}]}`)

	b, err := acct.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !b.Available || len(b.Entries) != 1 {
		t.Fatalf("unexpected balance %+v", b)
	}
	e := b.Entries[0]
	if e.Currency != "CNY" || e.TotalBalance != "110.00" || e.GrantedBalance != "10.00" || e.ToppedUpBalance != "100.00" {
		t.Errorf("unexpected entry %+v", e)
	}
	if len(rt.seen) != 1 || rt.seen[0].Header.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("expected one authorized call, got %d", len(rt.seen))
	}
}

func TestDeepSeekAccount_ErrorStatusIsProviderError(t *testing.T) {
	t.Parallel()

	acct, _, _ := newBalanceServer(t, http.StatusUnauthorized, `{"error":{"message":"Authentication Fails"}}`)

	_, err := acct.Balance(context.Background())
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", perr.StatusCode)
	}
}

func TestDeepSeekAccount_RequiresKey(t *testing.T) {
	t.Parallel()

	acct, rt, setKey := newBalanceServer(t, http.StatusOK, `{}`)
	setKey("")

	if _, err := acct.Balance(context.Background()); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
	if len(rt.seen) != 0 {
		t.Error("no request may be sent without a key")
	}
}
