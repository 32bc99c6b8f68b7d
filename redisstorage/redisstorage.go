package redisstorage

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/quote"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	swapQuoteKeyPrefix = "flightpath_swap_quote_"
	coinPriceHashKey   = "flightpath_coin_prices"
)

// RedisStorage is the short-lived cache for swap quotes and coin prices.
type RedisStorage interface {
	quote.Cache
	SetCoinPrice(ctx context.Context, chainID uint64, addr common.Address, priceUsd float64) error
	GetCoinPrice(ctx context.Context, chainID uint64, addr common.Address) (float64, error)
}

// redisStorageImpl implements RedisStorage interface
type redisStorageImpl struct {
	client   *redis.Client
	quoteTTL time.Duration
}

// NewRedisStorage connects to the redis server and returns the storage.
func NewRedisStorage(cfg Config) (RedisStorage, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	res, err := client.Ping(context.Background()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to redis server")
	}
	log.Debugf("redis health check done, result: %v", res)
	quoteTTL := time.Duration(cfg.QuoteTTLSeconds) * time.Second
	if quoteTTL <= 0 {
		quoteTTL = 15 * time.Second //nolint:gomnd
	}
	return &redisStorageImpl{client: client, quoteTTL: quoteTTL}, nil
}

type cachedSwapQuote struct {
	OutputAmount   string `json:"outputAmount"`
	ApprovalTarget string `json:"approvalTarget"`
	SwapTarget     string `json:"swapTarget"`
	Calldata       []byte `json:"calldata"`
	NativeValue    string `json:"nativeValue"`
}

// GetSwapQuote returns the cached quote for key, or nil on a miss.
func (s *redisStorageImpl) GetSwapQuote(ctx context.Context, key string) (*quote.SwapQuote, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis client is nil")
	}
	raw, err := s.client.Get(ctx, swapQuoteKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get swap quote error")
	}
	var cached cachedSwapQuote
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, errors.Wrap(err, "unmarshal swap quote error")
	}
	outputAmount, ok := new(big.Int).SetString(cached.OutputAmount, 10) //nolint:gomnd
	if !ok {
		return nil, errors.Errorf("invalid cached output amount %q", cached.OutputAmount)
	}
	nativeValue, ok := new(big.Int).SetString(cached.NativeValue, 10) //nolint:gomnd
	if !ok {
		return nil, errors.Errorf("invalid cached native value %q", cached.NativeValue)
	}
	return &quote.SwapQuote{
		OutputAmount:   outputAmount,
		ApprovalTarget: common.HexToAddress(cached.ApprovalTarget),
		SwapTarget:     common.HexToAddress(cached.SwapTarget),
		Calldata:       cached.Calldata,
		NativeValue:    nativeValue,
	}, nil
}

// SetSwapQuote caches the quote under key for the configured TTL.
func (s *redisStorageImpl) SetSwapQuote(ctx context.Context, key string, q *quote.SwapQuote) error {
	if s == nil || s.client == nil {
		return errors.New("redis client is nil")
	}
	raw, err := json.Marshal(cachedSwapQuote{
		OutputAmount:   q.OutputAmount.String(),
		ApprovalTarget: q.ApprovalTarget.Hex(),
		SwapTarget:     q.SwapTarget.Hex(),
		Calldata:       q.Calldata,
		NativeValue:    q.NativeValue.String(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal swap quote error")
	}
	return s.client.Set(ctx, swapQuoteKeyPrefix+key, raw, s.quoteTTL).Err()
}

func getCoinPriceKey(chainID uint64, addr common.Address) string {
	return addr.Hex() + "_" + big.NewInt(int64(chainID)).String()
}

// SetCoinPrice stores the USD price used for route step estimates.
func (s *redisStorageImpl) SetCoinPrice(ctx context.Context, chainID uint64, addr common.Address, priceUsd float64) error {
	if s == nil || s.client == nil {
		return errors.New("redis client is nil")
	}
	err := s.client.HSet(ctx, coinPriceHashKey, getCoinPriceKey(chainID, addr), priceUsd).Err()
	return errors.Wrap(err, "set coin price error")
}

// GetCoinPrice returns the stored USD price for the token, 0 when unknown.
func (s *redisStorageImpl) GetCoinPrice(ctx context.Context, chainID uint64, addr common.Address) (float64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("redis client is nil")
	}
	raw, err := s.client.HGet(ctx, coinPriceHashKey, getCoinPriceKey(chainID, addr)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get coin price error")
	}
	return raw, nil
}
