package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudflare/cfssl/log"
	"github.com/pkg/errors"
	"github.com/rkcloudchain/crlprune/config"
	"github.com/rkcloudchain/crlprune/metadata"
	"github.com/rkcloudchain/crlprune/util"
)

const (
	cmdName      = "crlprune"
	longName     = "CloudChain CRL pruning tool"
	envVarPrefix = "CRLPRUNE"
)

const (
	defaultCfgTemplate = `# Version of config file
version: <<<VERSION>>>

#############################################################################
#  The CA section contains the key material of the Certificate Authority
#  whose CRL is pruned. The certificate and key files are used to verify
#  the CRL before pruning and to re-sign it afterwards.
#############################################################################
ca:
  # Name of this CA
  name:
  # PEM-encoded CA certificate file (default: ca-cert.pem)
  certfile: ca-cert.pem
  # PEM-encoded CA private key file (default: ca-key.pem)
  keyfile: ca-key.pem
  # PEM-encoded CRL file to prune (default: ca-crl.pem)
  crlfile: ca-crl.pem

#############################################################################
#  The server section describes the CA server that normally owns the CRL.
#  Pruning refuses to run while this server is reachable, since the CA
#  could be issuing or revoking certificates concurrently.
#############################################################################
server:
  # Address the CA server listens on (default: localhost:8054)
  address: localhost:8054
  # Dial timeout for the reachability check (default: 2s)
  timeout: 2s

#############################################################################
#  The output section controls how the pruned CRL is written back.
#############################################################################
output:
  # Write a .bak copy of the CRL file before overwriting it (default: true)
  backup: true
  # File mode of the written CRL file, in octal (default: 0644)
  filemode: "0644"
`
)

var (
	extraArgsError = "Unrecognized arguments found: %v\n\n%s"
)

// Initialize config
func (p *PruneCmd) configInit() (err error) {
	if !p.configRequired() {
		return nil
	}

	p.cfgFileName, p.homeDirectory, err = validateAndReturnAbsConf(p.cfgFileName, p.homeDirectory, cmdName)
	if err != nil {
		return err
	}

	p.v.AutomaticEnv()
	logLevel := p.v.GetString("loglevel")
	setLogLevel(logLevel)

	log.Debugf("Home directory: %s", p.homeDirectory)

	if !util.FileExists(p.cfgFileName) {
		err = p.createDefaultConfigFile()
		if err != nil {
			return errors.WithMessage(err, "Failed to create default configuration file")
		}
		log.Infof("Created default configuration file at %s", p.cfgFileName)
	} else {
		log.Infof("Configuration file location: %s", p.cfgFileName)
	}

	err = config.UnmarshalConfig(p.cfg, p.v, p.cfgFileName)
	if err != nil {
		return err
	}

	return nil
}

func (p *PruneCmd) createDefaultConfigFile() error {
	cfg := strings.Replace(defaultCfgTemplate, "<<<VERSION>>>", metadata.Version, 1)
	cfgDir := filepath.Dir(p.cfgFileName)
	err := os.MkdirAll(cfgDir, 0755)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(p.cfgFileName, []byte(cfg), 0644)
}

func setLogLevel(logLevel string) {
	switch strings.ToUpper(logLevel) {
	case "INFO":
		log.Level = log.LevelInfo
	case "WARNING":
		log.Level = log.LevelWarning
	case "DEBUG":
		log.Level = log.LevelDebug
	case "ERROR":
		log.Level = log.LevelError
	case "CRITICAL":
		log.Level = log.LevelCritical
	case "FATAL":
		log.Level = log.LevelFatal
	default:
		log.Level = log.LevelInfo
	}
}

// checks to see that there are no conflicts between the configuration file path and home directory.
// If no conflicts, returns back the absolute path for the configuration file and home directory.
func validateAndReturnAbsConf(configFilePath, homeDir, cmdName string) (string, string, error) {
	var err error
	var homeDirSet bool
	var configFileSet bool

	defaultConfig := defaultConfigFile()
	if configFilePath == "" {
		configFilePath = defaultConfig
	} else {
		configFileSet = true
	}

	if homeDir == "" {
		homeDir = filepath.Dir(defaultConfig)
	} else {
		homeDirSet = true
	}

	homeDir, err = filepath.Abs(homeDir)
	if err != nil {
		return "", "", errors.Wrap(err, "Failed to get full path of config file")
	}
	homeDir = strings.TrimRight(homeDir, string(os.PathSeparator))

	if configFileSet && homeDirSet {
		log.Warning("Using both --config and --home CLI flags; --config will take precedence")
	}

	if configFileSet {
		configFilePath, err = filepath.Abs(configFilePath)
		if err != nil {
			return "", "", errors.Wrap(err, "Failed to get full path of configuration file")
		}
		return configFilePath, filepath.Dir(configFilePath), nil
	}

	configFile := filepath.Join(homeDir, filepath.Base(defaultConfig))
	return configFile, homeDir, nil
}

func defaultConfigFile() string {
	fname := fmt.Sprintf("%s-config.yaml", cmdName)
	home := "."
	envs := []string{"CRLPRUNE_HOME", "CA_CFG_PATH"}
	for _, env := range envs {
		envVal := os.Getenv(env)
		if envVal != "" {
			home = envVal
			break
		}
	}
	return filepath.Join(home, fname)
}
