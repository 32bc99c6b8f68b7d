package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/authcodec"
	"github.com/flightpath-fi/consolidator-service/composer"
	"github.com/flightpath-fi/consolidator-service/config"
	"github.com/flightpath-fi/consolidator-service/db"
	"github.com/flightpath-fi/consolidator-service/dispatcher"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/metrics"
	"github.com/flightpath-fi/consolidator-service/pricefeed"
	"github.com/flightpath-fi/consolidator-service/quote"
	"github.com/flightpath-fi/consolidator-service/redisstorage"
	"github.com/flightpath-fi/consolidator-service/registry"
	"github.com/flightpath-fi/consolidator-service/server"
	"github.com/flightpath-fi/consolidator-service/utils"
	"github.com/urfave/cli/v2"
)

func start(cliCtx *cli.Context) error {
	configFilePath := cliCtx.String(flagCfg)
	network := cliCtx.String(flagNetwork)
	c, err := config.Load(configFilePath, network)
	if err != nil {
		return err
	}
	setupLog(c.Log)

	err = db.RunMigrations(c.DB)
	if err != nil {
		log.Error(err)
		return err
	}
	storage, err := db.NewStorage(c.DB)
	if err != nil {
		log.Error(err)
		return err
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()

	reg := registry.New(c.NetworkConfig.ChainSpecs())

	var cache quote.Cache
	var prices redisstorage.RedisStorage
	if c.Redis.Enabled {
		redisStorage, err := redisstorage.NewRedisStorage(c.Redis)
		if err != nil {
			log.Error(err)
			return err
		}
		cache = redisStorage
		prices = redisStorage
	}

	signer, err := utils.NewKeySignerFromKeystore(c.SignerKeystore)
	if err != nil {
		log.Error(err)
		return err
	}

	balances, err := composer.NewRPCBalanceSource(ctx, reg, signer.Address(), c.NetworkConfig.RPCURLs())
	if err != nil {
		log.Error(err)
		return err
	}

	swaps := quote.NewSwapClient(c.Quote, cache)
	bridges := quote.NewBridgeClient(c.Quote, reg)
	comp := composer.NewComposer(reg, swaps, bridges, balances)

	salts := authcodec.NewSaltRegistry()
	verifier := accumulator.NewLegVerifier(c.Accumulator.ChainID, salts)
	executor := accumulator.NewRelayExecutor(c.Accumulator)
	settler := accumulator.NewAccumulator(c.Accumulator, storage, executor, verifier, nil)

	relay := dispatcher.NewRelayClient(c.Dispatcher)
	legDispatcher := dispatcher.NewDispatcher(c.Dispatcher, storage, relay)

	apiServer := server.NewServer(c.Server, comp, legDispatcher, settler, signer, prices)

	log.Infof("consolidator started: %d chains, settling on chain %d as %s",
		len(c.NetworkConfig.Chains), c.Accumulator.ChainID, signer.Address())

	go settler.Start(ctx)
	go legDispatcher.Start(ctx)
	if c.PriceFeed.Enabled && prices != nil {
		go pricefeed.NewFeed(c.PriceFeed, prices).Start(ctx)
	}
	go metrics.StartMetricsHTTPServer(c.Metrics)
	go func() {
		if err := apiServer.Run(); err != nil {
			log.Fatalf("consolidation API server failed: %v", err)
		}
	}()

	// Wait for an interrupt.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	<-ch
	cancel()

	return nil
}

func setupLog(c log.Config) {
	log.Init(c)
}
