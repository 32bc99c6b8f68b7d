package accumulator

import (
	"github.com/flightpath-fi/consolidator-service/config/types"
)

// Config is the settlement engine configuration
type Config struct {
	// ChainID is the destination chain this engine settles on
	ChainID uint64 `mapstructure:"ChainID"`
	// JobLifetime is how long a job may accumulate before it goes stale
	JobLifetime types.Duration `mapstructure:"JobLifetime"`
	// FrequencyToCheckDeadlines is the period of the stale-job sweep
	FrequencyToCheckDeadlines types.Duration `mapstructure:"FrequencyToCheckDeadlines"`
	// MaxFeeWei caps the execution fee regardless of the quoted one
	MaxFeeWei uint64 `mapstructure:"MaxFeeWei"`
	// RelayURL is the base url of the gas relay API on this chain
	RelayURL string `mapstructure:"RelayURL"`
	// RequestTimeout bounds every relay request
	RequestTimeout types.Duration `mapstructure:"RequestTimeout"`
}
