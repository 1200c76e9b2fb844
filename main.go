package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/JunaidCD/AyurherbX-sub001/app"
	"github.com/JunaidCD/AyurherbX-sub001/client"
	appcfg "github.com/JunaidCD/AyurherbX-sub001/config"
	"github.com/JunaidCD/AyurherbX-sub001/identity"
	"github.com/JunaidCD/AyurherbX-sub001/repository"
	"github.com/JunaidCD/AyurherbX-sub001/server"
	cfg "github.com/cometbft/cometbft/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/viper"
)

func main() {
	// Load Config
	runCfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}

	homeDir := runCfg.CometHome
	if homeDir == "" {
		homeDir = os.ExpandEnv("$HOME/.cometbft")
	}
	config := cfg.DefaultConfig()
	config.SetRoot(homeDir)
	viper.SetConfigFile(fmt.Sprintf("%s/%s", homeDir, "config/config.toml"))
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Reading config: %v", err)
	}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("Decoding config: %v", err)
	}
	if err := config.ValidateBasic(); err != nil {
		log.Fatalf("Invalid configuration data: %v", err)
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))

	// Facade signing identity: load if present, otherwise create and persist
	wallet, err := identity.LoadWallet(runCfg.SignerKeyFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Loading signer key: %v", err)
		}
		wallet = identity.NewWallet()
		if err := wallet.Save(runCfg.SignerKeyFile); err != nil {
			log.Fatalf("Saving signer key: %v", err)
		}
		logger.Info("Generated new signer key", "path", runCfg.SignerKeyFile, "address", wallet.Address())
	}

	genesisOwner := identity.Address(runCfg.GenesisOwner)
	if genesisOwner == "" {
		genesisOwner = wallet.Address()
	}

	// Connect Postgresql mirror, non-fatal: the chain stays authoritative
	repo := repository.NewRepository(logger)
	if runCfg.MirrorEnabled {
		dsn := runCfg.PostgresDSN()
		logger.Info("Connecting to audit mirror", "host", runCfg.PostgresHost)
		if err := repo.ConnectDB(dsn); err != nil {
			logger.Error("Audit mirror unavailable, continuing without it", "err", err)
		} else if err := repo.Migrate(); err != nil {
			logger.Error("Migrating audit mirror failed", "err", err)
		}
	}

	// Initialize Badger DB
	badgerPath := filepath.Join(homeDir, "badger")
	db, err := badger.Open(badger.DefaultOptions(badgerPath))
	if err != nil {
		log.Fatalf("Opening database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Fatalf("Closing database: %v", err)
		}
	}()

	// Create ABCI Application
	appConfig := &app.AppConfig{
		NodeID:       filepath.Base(homeDir),
		GenesisOwner: genesisOwner,
	}
	abciApp := app.NewABCIApplication(db, appConfig, logger)

	// Private Validator
	pv := privval.LoadFilePV(
		config.PrivValidatorKeyFile(),
		config.PrivValidatorStateFile(),
	)

	// P2P network identity
	nodeKey, err := p2p.LoadNodeKey(config.NodeKeyFile())
	if err != nil {
		log.Fatalf("failed to load node's key: %v", err)
	}

	logger, err = cmtflags.ParseLogLevel(config.LogLevel, logger, cfg.DefaultLogLevel)
	if err != nil {
		log.Fatalf("failed to parse log level: %v", err)
	}

	// Initialize CometBFT node
	node, err := nm.NewNode(
		context.Background(),
		config,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(abciApp),
		nm.DefaultGenesisDocProviderFunc(config),
		cfg.DefaultDBProvider,
		nm.DefaultMetricsProvider(config.Instrumentation),
		logger,
	)
	if err != nil {
		log.Fatalf("Creating node: %v", err)
	}

	// Pass Node ID to app
	abciApp.SetNodeID(string(node.NodeInfo().ID()))

	// Ledger deployment descriptor: absent means not-deployed mode, but a
	// fresh single-node chain deploys itself at first boot
	descriptor, err := client.LoadDescriptor(runCfg.DescriptorPath)
	if err != nil {
		log.Fatalf("Loading ledger descriptor: %v", err)
	}
	if descriptor == nil {
		descriptor = &client.Descriptor{
			ChainID:    node.GenesisDoc().ChainID,
			Network:    runCfg.ChainNetwork,
			Owner:      genesisOwner,
			DeployedAt: time.Now().UTC(),
		}
		if err := client.SaveDescriptor(runCfg.DescriptorPath, descriptor); err != nil {
			log.Fatalf("Writing ledger descriptor: %v", err)
		}
		logger.Info("Wrote ledger descriptor", "path", runCfg.DescriptorPath, "owner", descriptor.Owner)
	}

	// Start CometBFT node
	node.Start()
	defer func() {
		node.Stop()
		node.Wait()
	}()

	// Instantiate chain client from the in-process rpc endpoint
	rpcClient := cmtrpc.New(node)
	chainClient := client.NewClient(rpcClient, descriptor, logger)

	// Start Web Server
	webserver, err := server.NewWebServer(chainClient, wallet, repo, runCfg.HTTPPort, logger, node)
	if err != nil {
		log.Fatalf("Creating web server: %v", err)
	}

	err = webserver.Start()
	if err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	// Create deadline to wait for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown the web server
	err = webserver.Shutdown(ctx)
	if err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
}
