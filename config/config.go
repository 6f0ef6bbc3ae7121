package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the portal settings read from config.yaml and WAVE_* environment variables.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	Log struct {
		AppLogFile string `mapstructure:"app_log_file"`
		Level      string `mapstructure:"level"`
	} `mapstructure:"log"`

	Ledger struct {
		RPCURL          string `mapstructure:"rpc_url"`
		ContractAddress string `mapstructure:"contract_address"`
		DescriptorPath  string `mapstructure:"descriptor_path"`
		ChainID         int64  `mapstructure:"chain_id"`
		GasLimit        uint64 `mapstructure:"gas_limit"`
	} `mapstructure:"ledger"`

	Wallet struct {
		KeystoreDir   string `mapstructure:"keystore_dir"`
		PassphraseEnv string `mapstructure:"passphrase_env"`
	} `mapstructure:"wallet"`

	Feed struct {
		CachePath string `mapstructure:"cache_path"` // empty keeps the feed in memory
	} `mapstructure:"feed"`
}

// Load reads the config file at path; a missing file falls back to defaults and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	// every key needs a default so Unmarshal sees environment overrides
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.contract_address", "")
	v.SetDefault("ledger.descriptor_path", "config/WavePortal.json")
	v.SetDefault("ledger.chain_id", 11155111)
	v.SetDefault("ledger.gas_limit", 300000)
	v.SetDefault("wallet.keystore_dir", "")
	v.SetDefault("wallet.passphrase_env", "WAVE_WALLET_PASSPHRASE")
	v.SetDefault("feed.cache_path", "")

	v.SetEnvPrefix("WAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
