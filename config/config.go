package config

import (
	"flag"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config collects the node's runtime settings. Values come from flags
// first, then AYURHERB_* environment variables, then defaults.
type Config struct {
	CometHome      string `mapstructure:"comet_home"`
	HTTPPort       string `mapstructure:"http_port"`
	PostgresHost   string `mapstructure:"postgres_host"`
	PostgresUser   string `mapstructure:"postgres_user"`
	PostgresPass   string `mapstructure:"postgres_pass"`
	PostgresDB     string `mapstructure:"postgres_db"`
	MirrorEnabled  bool   `mapstructure:"mirror_enabled"`
	DescriptorPath string `mapstructure:"descriptor_path"`
	SignerKeyFile  string `mapstructure:"signer_key_file"`
	GenesisOwner   string `mapstructure:"genesis_owner"`
	ChainNetwork   string `mapstructure:"chain_network"`
}

// Load parses flags and environment into a Config. Must be called once,
// before flag.Parse side effects are needed elsewhere.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AYURHERB")
	v.AutomaticEnv()

	v.SetDefault("comet_home", "./node-config/ayurherb-node")
	v.SetDefault("http_port", "5000")
	v.SetDefault("postgres_host", "ayurherb-postgres:5432")
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_pass", "postgrespassword")
	v.SetDefault("postgres_db", "postgres")
	v.SetDefault("mirror_enabled", true)
	v.SetDefault("chain_network", "ayurherb-local")

	var (
		cometHome    string
		httpPort     string
		postgresHost string
		genesisOwner string
	)
	flag.StringVar(&cometHome, "cmt-home", v.GetString("comet_home"), "Path to the CometBFT config directory")
	flag.StringVar(&httpPort, "http-port", v.GetString("http_port"), "HTTP web server port")
	flag.StringVar(&postgresHost, "postgres-host", v.GetString("postgres_host"), "DB host address")
	flag.StringVar(&genesisOwner, "genesis-owner", v.GetString("genesis_owner"), "Initial ledger owner address (hex)")
	flag.Parse()

	cfg := &Config{
		CometHome:      cometHome,
		HTTPPort:       httpPort,
		PostgresHost:   postgresHost,
		PostgresUser:   v.GetString("postgres_user"),
		PostgresPass:   v.GetString("postgres_pass"),
		PostgresDB:     v.GetString("postgres_db"),
		MirrorEnabled:  v.GetBool("mirror_enabled"),
		DescriptorPath: v.GetString("descriptor_path"),
		SignerKeyFile:  v.GetString("signer_key_file"),
		GenesisOwner:   genesisOwner,
		ChainNetwork:   v.GetString("chain_network"),
	}
	if cfg.DescriptorPath == "" {
		cfg.DescriptorPath = filepath.Join(cfg.CometHome, "ledger-descriptor.json")
	}
	if cfg.SignerKeyFile == "" {
		cfg.SignerKeyFile = filepath.Join(cfg.CometHome, "signer.key")
	}
	return cfg, nil
}

// PostgresDSN builds the connection string for the audit mirror.
func (c *Config) PostgresDSN() string {
	return "postgresql://" + c.PostgresUser + ":" + c.PostgresPass + "@" + c.PostgresHost + "/" + c.PostgresDB
}
