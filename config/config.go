package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the crlprune tool's configuration
type Config struct {
	// Version of the config file
	Version string `skip:"true"`
	// Enables debug logging
	Debug bool `def:"false" opt:"d" help:"Enable debug level logging"`
	// Sets the logging level
	LogLevel string `help:"Set logging level (info, warning, debug, error, fatal, critical)"`
	// CA holds the key material of the CA whose CRL is pruned
	CA CAInfo
	// Server describes the CA server that normally owns the CRL
	Server ServerInfo
	// Output controls how the pruned CRL is written back
	Output OutputInfo
}

// CAInfo is the key material of the CA whose CRL is pruned
type CAInfo struct {
	Name     string `help:"Name of the CA"`
	Certfile string `def:"ca-cert.pem" help:"PEM-encoded CA certificate file"`
	Keyfile  string `def:"ca-key.pem" help:"PEM-encoded CA private key file"`
	Crlfile  string `def:"ca-crl.pem" help:"PEM-encoded CRL file to prune"`
}

// ServerInfo describes the CA server whose reachability is checked
// before any pruning takes place
type ServerInfo struct {
	Address string        `def:"localhost:8054" help:"Address the CA server listens on"`
	Timeout time.Duration `def:"2s" help:"Dial timeout for the CA server reachability check"`
}

// OutputInfo controls how the pruned CRL file is persisted
type OutputInfo struct {
	Backup   bool   `def:"true" help:"Write a .bak copy of the CRL file before overwriting it"`
	FileMode string `def:"0644" help:"File mode of the written CRL file, in octal"`
}

// UnmarshalConfig unmarshals a configuration file
func UnmarshalConfig(cfg *Config, vp *viper.Viper, configFile string) error {
	vp.SetConfigFile(configFile)
	err := vp.ReadInConfig()
	if err != nil {
		return errors.Wrapf(err, "Failed to read config file '%s'", configFile)
	}

	err = vp.Unmarshal(cfg)
	if err != nil {
		return errors.Wrapf(err, "Incorrect format in file '%s'", configFile)
	}
	return nil
}
