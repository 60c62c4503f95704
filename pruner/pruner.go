// Package pruner coordinates a CRL pruning run: it loads the CA key
// material and CRLs, removes duplicate revocation entries, and re-signs
// and persists the CRLs when anything was removed.
package pruner

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cloudflare/cfssl/log"
	"github.com/pkg/errors"
	"github.com/rkcloudchain/crlprune/config"
	"github.com/rkcloudchain/crlprune/crl"
	caerrors "github.com/rkcloudchain/crlprune/errors"
	"github.com/rkcloudchain/crlprune/metadata"
	"github.com/rkcloudchain/crlprune/util"
)

// Pruner is the crlprune run coordinator
type Pruner struct {
	// The home directory for the tool
	HomeDir string
	// The tool's configuration
	Config *config.Config
	// The loaded CRLs and CA key material
	store *crl.Store
}

// Run performs a single pruning run. The run is terminal: it either
// finds no duplicates and leaves the CRL file untouched, or removes
// them, re-signs the CRLs and writes the file back. Any config, load
// or online error aborts the run before anything is written.
func (p *Pruner) Run() (err error) {
	log.Infof("Version: %s", metadata.Version)

	err = p.initConfig()
	if err != nil {
		return err
	}

	if p.serverOnline() {
		return caerrors.NewOnlineError("CA server at '%s' is reachable; refusing to prune the CRL of a running CA", p.Config.Server.Address)
	}

	p.store, err = loadMaterial(p.Config.CA.Certfile, p.Config.CA.Keyfile, p.Config.CA.Crlfile)
	if err != nil {
		return err
	}

	stats := crl.Prune(p.store.CRLs)
	log.Infof("Found %d revocation entries in %d CRLs", stats.Seen, len(p.store.CRLs))
	if stats.Removed == 0 {
		log.Info("No duplicate revocation entries found")
		return nil
	}
	log.Infof("Removed %d duplicate revocation entries", stats.Removed)

	err = crl.Resign(p.store.CRLs, p.store.Cert, p.store.Key)
	// The key is not needed once re-signing is done
	p.store.Key = nil
	if err != nil {
		return caerrors.NewPruneError(caerrors.ErrResign, "Failed to re-sign pruned CRLs: %s", err)
	}

	err = p.writeCRLs()
	if err != nil {
		return err
	}
	log.Infof("Pruned CRL written to %s", p.Config.CA.Crlfile)
	return nil
}

func (p *Pruner) initConfig() (err error) {
	if p.HomeDir == "" {
		p.HomeDir, err = os.Getwd()
		if err != nil {
			return errors.Wrap(err, "Failed to get tool's home directory")
		}
	}

	absoluteHomeDir, err := filepath.Abs(p.HomeDir)
	if err != nil {
		return errors.Errorf("Failed to make tool's home directory path absolute: %s", err)
	}
	p.HomeDir = absoluteHomeDir

	if p.Config == nil {
		p.Config = new(config.Config)
	}
	if p.Config.CA.Crlfile == "" {
		return caerrors.NewConfigError("No CRL file specified in the 'ca.crlfile' configuration")
	}
	if p.Config.CA.Certfile == "" || p.Config.CA.Keyfile == "" {
		return caerrors.NewConfigError("Both 'ca.certfile' and 'ca.keyfile' must be configured")
	}

	return p.makeFileNamesAbsolute()
}

// Make all file names in the config absolute
func (p *Pruner) makeFileNamesAbsolute() error {
	log.Debug("Making CA file names absolute")

	fields := []*string{&p.Config.CA.Certfile, &p.Config.CA.Keyfile, &p.Config.CA.Crlfile}
	return util.MakeFileNamesAbsolute(fields, p.HomeDir)
}

// writeCRLs persists the re-signed CRLs as concatenated PEM, the same
// multi-CRL shape the input file used
func (p *Pruner) writeCRLs() error {
	fileMode := p.Config.Output.FileMode
	if fileMode == "" {
		fileMode = "0644"
	}
	mode, err := strconv.ParseUint(fileMode, 8, 32)
	if err != nil {
		return caerrors.NewConfigError("Invalid octal file mode '%s' in the 'output.filemode' configuration", fileMode)
	}

	crlFile := p.Config.CA.Crlfile
	if p.Config.Output.Backup && util.FileExists(crlFile) {
		orig, err := ioutil.ReadFile(crlFile)
		if err != nil {
			return errors.Wrapf(err, "Failed to read '%s' for backup", crlFile)
		}
		err = util.WriteFile(crlFile+".bak", orig, os.FileMode(mode))
		if err != nil {
			return errors.Wrapf(err, "Failed to write backup of '%s'", crlFile)
		}
		log.Debugf("Wrote backup of %s to %s.bak", crlFile, crlFile)
	}

	var buf []byte
	for _, c := range p.store.CRLs {
		buf = append(buf, c.ToPEM()...)
	}
	return util.WriteFile(crlFile, buf, os.FileMode(mode))
}
