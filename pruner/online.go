package pruner

import (
	"net"
	"time"

	"github.com/cloudflare/cfssl/log"
)

const defaultDialTimeout = 2 * time.Second

// serverOnline reports whether the configured CA server accepts TCP
// connections. Pruning a CRL while the CA might be issuing or revoking
// concurrently risks lost updates, so a reachable server aborts the run.
func (p *Pruner) serverOnline() bool {
	addr := p.Config.Server.Address
	if addr == "" {
		log.Debug("No CA server address configured; skipping reachability check")
		return false
	}

	timeout := p.Config.Server.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		log.Debugf("CA server at %s is not reachable: %s", addr, err)
		return false
	}
	conn.Close()
	return true
}
