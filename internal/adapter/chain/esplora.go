package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// EsploraSource implements ports.ConfirmationSource against an Esplora REST API
// (blockstream.info, mempool.space, or a self-hosted electrs).
type EsploraSource struct {
	baseURL    string
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewEsploraSource creates a confirmation source for the given API root.
func NewEsploraSource(baseURL string, httpClient HTTPClient, log zerolog.Logger) *EsploraSource {
	return &EsploraSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// NewHTTPClient returns the client used in production.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type esploraUTXO struct {
	TxID   string `json:"txid"`
	Vout   int    `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// ConfirmationsFor sums the unspent outputs paying address. Confirmations is
// the depth of the shallowest output, zero while any output is in the mempool.
func (s *EsploraSource) ConfirmationsFor(ctx context.Context, address string) (domain.Confirmation, error) {
	var utxos []esploraUTXO
	if err := s.getJSON(ctx, "/address/"+url.PathEscape(address)+"/utxo", &utxos); err != nil {
		return domain.Confirmation{}, err
	}
	if len(utxos) == 0 {
		return domain.Confirmation{}, nil
	}

	var conf domain.Confirmation
	allConfirmed := true
	var newest int64
	for _, u := range utxos {
		conf.Balance += u.Value
		if !u.Status.Confirmed {
			allConfirmed = false
			continue
		}
		if u.Status.BlockHeight > newest {
			newest = u.Status.BlockHeight
		}
	}

	if allConfirmed {
		tip, err := s.TipHeight(ctx)
		if err != nil {
			return domain.Confirmation{}, err
		}
		if depth := tip - newest + 1; depth > 0 {
			conf.Confirmations = int(depth)
		}
	}

	s.log.Debug().
		Str("address", address).
		Int("utxos", len(utxos)).
		Int64("balance", conf.Balance).
		Int("confirmations", conf.Confirmations).
		Msg("esplora: confirmations fetched")

	return conf, nil
}

// TipHeight returns the current best block height.
func (s *EsploraSource) TipHeight(ctx context.Context) (int64, error) {
	body, err := s.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, apperror.ErrTemporarilyUnavailable(fmt.Errorf("esplora: parsing tip height: %w", err))
	}
	return height, nil
}

// Ping implements ports.HealthChecker.
func (s *EsploraSource) Ping(ctx context.Context) error {
	_, err := s.TipHeight(ctx)
	return err
}

// Name returns the dependency name.
func (s *EsploraSource) Name() string {
	return "esplora"
}

func (s *EsploraSource) getJSON(ctx context.Context, path string, dst any) error {
	body, err := s.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperror.ErrTemporarilyUnavailable(fmt.Errorf("esplora: decoding %s: %w", path, err))
	}
	return nil
}

// get maps every transport failure, 429 and 5xx to TemporarilyUnavailable.
func (s *EsploraSource) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("esplora: building request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperror.ErrTemporarilyUnavailable(fmt.Errorf("esplora: GET %s: %w", path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperror.ErrTemporarilyUnavailable(fmt.Errorf("esplora: reading %s: %w", path, err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperror.ErrTemporarilyUnavailable(fmt.Errorf("esplora: GET %s: status %d", path, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("esplora: GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
