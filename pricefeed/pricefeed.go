// Package pricefeed keeps the USD price cache warm by polling an external
// price API. Prices are advisory only: they feed route estimates, never
// execution amounts.
package pricefeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/config/types"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/redisstorage"
	"github.com/pkg/errors"
)

// Config is configuration for the price feed poller
type Config struct {
	// Enabled disables the poller entirely when false
	Enabled bool `mapstructure:"Enabled"`

	// URL of the price API returning the tracked token prices
	URL string `mapstructure:"URL"`

	// Frequency of the polling
	Frequency types.Duration `mapstructure:"Frequency"`

	// RequestTimeout bounds every poll request
	RequestTimeout types.Duration `mapstructure:"RequestTimeout"`
}

// Feed polls the price API and writes into the redis price cache.
type Feed struct {
	cfg        Config
	storage    redisstorage.RedisStorage
	httpClient *http.Client
}

// NewFeed creates a price feed poller.
func NewFeed(cfg Config, storage redisstorage.RedisStorage) *Feed {
	return &Feed{
		cfg:        cfg,
		storage:    storage,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.Duration},
	}
}

type priceEntry struct {
	ChainID  uint64  `json:"chainId"`
	Address  string  `json:"address"`
	PriceUsd float64 `json:"priceUsd"`
}

// Start polls until the context is cancelled.
func (f *Feed) Start(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Frequency.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.poll(ctx); err != nil {
				log.Warnf("price poll failed: %v", err)
			}
		}
	}
}

func (f *Feed) poll(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "price request failed")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("price api status %d: %s", resp.StatusCode, body)
	}
	var entries []priceEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return errors.Wrap(err, "malformed price response")
	}
	for _, entry := range entries {
		if entry.PriceUsd <= 0 {
			continue
		}
		err := f.storage.SetCoinPrice(ctx, entry.ChainID, common.HexToAddress(entry.Address), entry.PriceUsd)
		if err != nil {
			return err
		}
	}
	log.Debugf("refreshed %d coin prices", len(entries))
	return nil
}
