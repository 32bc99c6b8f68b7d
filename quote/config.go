package quote

import (
	"github.com/flightpath-fi/consolidator-service/config/types"
)

// Config for the quote provider HTTP clients
type Config struct {
	// SwapURL is the base url of the swap aggregator API
	SwapURL string `mapstructure:"SwapURL"`
	// BridgeURL is the base url of the bridge relayer API
	BridgeURL string `mapstructure:"BridgeURL"`
	// RequestTimeout bounds every outbound quote request
	RequestTimeout types.Duration `mapstructure:"RequestTimeout"`
	// MinQuoteWindow is the minimum accepted distance between submission time and a bridge quote fill deadline
	MinQuoteWindow types.Duration `mapstructure:"MinQuoteWindow"`
	// MaxQuoteWindow is the maximum accepted distance between submission time and a bridge quote fill deadline
	MaxQuoteWindow types.Duration `mapstructure:"MaxQuoteWindow"`
}
