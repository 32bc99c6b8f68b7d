package dispatcher

import (
	"github.com/flightpath-fi/consolidator-service/config/types"
)

// Config is configuration for the route leg dispatcher
type Config struct {
	// FrequencyToMonitorLegs frequency of the status polling of broadcast legs
	FrequencyToMonitorLegs types.Duration `mapstructure:"FrequencyToMonitorLegs"`

	// RelayURL is the base url of the gas relay API
	RelayURL string `mapstructure:"RelayURL"`

	// RequestTimeout bounds every relay request
	RequestTimeout types.Duration `mapstructure:"RequestTimeout"`
}
