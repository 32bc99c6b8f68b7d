package config

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/config/types"
	"github.com/flightpath-fi/consolidator-service/db"
	"github.com/flightpath-fi/consolidator-service/dispatcher"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/metrics"
	"github.com/flightpath-fi/consolidator-service/pricefeed"
	"github.com/flightpath-fi/consolidator-service/quote"
	"github.com/flightpath-fi/consolidator-service/redisstorage"
	"github.com/flightpath-fi/consolidator-service/server"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config struct
type Config struct {
	Log         log.Config
	DB          db.Config
	Quote       quote.Config
	Redis       redisstorage.Config
	PriceFeed   pricefeed.Config
	Accumulator accumulator.Config
	Dispatcher  dispatcher.Config
	Server      server.Config
	Metrics     metrics.Config
	// SignerKeystore is the keystore for the route signing key
	SignerKeystore types.KeystoreFileConfig
	NetworkConfig
}

// Load loads the configuration
func Load(configFilePath string, network string) (*Config, error) {
	var cfg Config
	viper.SetConfigType("toml")

	err := viper.ReadConfig(bytes.NewBuffer([]byte(DefaultValues)))
	if err != nil {
		return nil, err
	}
	err = viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
	if err != nil {
		return nil, err
	}
	if configFilePath != "" {
		dirName, fileName := filepath.Split(configFilePath)

		fileExtension := strings.TrimPrefix(filepath.Ext(fileName), ".")
		fileNameWithoutExtension := strings.TrimSuffix(fileName, "."+fileExtension)

		viper.AddConfigPath(dirName)
		viper.SetConfigName(fileNameWithoutExtension)
		viper.SetConfigType(fileExtension)
	}
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetEnvPrefix("FLIGHTPATH")
	err = viper.ReadInConfig()
	if err != nil {
		_, ok := err.(viper.ConfigFileNotFoundError)
		if ok {
			log.Infof("config file not found")
		} else {
			log.Infof("error reading config file: ", err)
			return nil, err
		}
	}

	err = viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
	if err != nil {
		return nil, err
	}

	if viper.IsSet("NetworkConfig") && network != "" {
		return nil, errors.New("Network details are provided in the config file (the [NetworkConfig] section) and as a flag (the --network or -n). Configure it only once and try again please.")
	}
	if !viper.IsSet("NetworkConfig") && network == "" {
		return nil, errors.New("Network details are not provided. Please configure the [NetworkConfig] section in your config file, or provide a --network flag.")
	}
	if !viper.IsSet("NetworkConfig") && network != "" {
		cfg.loadNetworkConfig(network)
	}

	return &cfg, nil
}
