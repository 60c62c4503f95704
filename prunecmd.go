package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudflare/cfssl/log"
	"github.com/pkg/errors"
	"github.com/rkcloudchain/crlprune/config"
	"github.com/rkcloudchain/crlprune/metadata"
	"github.com/rkcloudchain/crlprune/pruner"
	"github.com/rkcloudchain/crlprune/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	version = "version"
)

// PruneCmd encapsulates cobra command that provides command line interface
// for the CRL pruning tool
type PruneCmd struct {
	name          string
	rootCmd       *cobra.Command
	v             *viper.Viper
	cfgFileName   string
	homeDirectory string
	cfg           *config.Config
}

// NewCommand returns new PruneCmd ready for running
func NewCommand(name string) *PruneCmd {
	p := &PruneCmd{
		name: name,
		v:    viper.New(),
	}
	p.init()
	return p
}

// Execute runs this PruneCmd
func (p *PruneCmd) Execute() error {
	return p.rootCmd.Execute()
}

func (p *PruneCmd) init() {
	// root command
	rootCmd := &cobra.Command{
		Use:   cmdName,
		Short: longName,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := p.configInit()
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			if p.v.GetBool("debug") {
				log.Level = log.LevelDebug
			}
			return nil
		},
	}
	p.rootCmd = rootCmd

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove duplicate revocation entries from the CA's CRL",
		Long:  "Remove duplicate revocation entries from the CA's CRL, bump the CRL number and re-sign it with the CA key",
	}
	pruneCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return errors.Errorf(extraArgsError, args, pruneCmd.UsageString())
		}
		err := p.getPruner().Run()
		if err != nil {
			log.Errorf("Pruning failure: %s", err)
			return err
		}
		return nil
	}
	p.rootCmd.AddCommand(pruneCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints crlprune version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(metadata.GetVersionInfo(cmdName))
		},
	}
	p.rootCmd.AddCommand(versionCmd)
	p.registerFlags()
}

// registers command flags with viper
func (p *PruneCmd) registerFlags() {
	cfg := defaultConfigFile()

	p.v.SetEnvPrefix(envVarPrefix)
	p.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	pflags := p.rootCmd.PersistentFlags()
	pflags.StringVarP(&p.cfgFileName, "config", "c", "", "Configuration file")
	pflags.MarkHidden("config")
	pflags.StringVarP(&p.homeDirectory, "home", "H", "", fmt.Sprintf("Tool's home directory (default \"%s\")", filepath.Dir(cfg)))

	p.cfg = &config.Config{}
	err := util.RegisterFlags(p.v, pflags, p.cfg, nil)
	if err != nil {
		panic(err)
	}
}

// Configuration file is not required for some commands like version
func (p *PruneCmd) configRequired() bool {
	return p.name != version
}

// getPruner returns a pruner.Pruner for the prune command
func (p *PruneCmd) getPruner() *pruner.Pruner {
	return &pruner.Pruner{
		HomeDir: p.homeDirectory,
		Config:  p.cfg,
	}
}
