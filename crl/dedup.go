package crl

import (
	"crypto/x509"

	"github.com/cloudflare/cfssl/log"
	"github.com/rkcloudchain/crlprune/util"
)

// Stats reports what a pruning pass saw and removed across all CRLs
type Stats struct {
	// Seen is the entry count before filtering, accumulated across all CRLs
	Seen int
	// Removed is the number of duplicate entries dropped
	Removed int
}

// Prune removes duplicate revocation entries from each CRL independently.
// Entries are walked in their existing order and the first entry for a
// serial number wins; later entries with the same serial are dropped.
// The relative order of kept entries is preserved. An empty revocation
// list is valid input and yields zero removals.
func Prune(crls []*CRL) Stats {
	var stats Stats

	for _, c := range crls {
		log.Debugf("Pruning revocation entries of CRL issued by '%s'", c.Issuer)

		stats.Seen += len(c.Entries)
		seen := make(map[string]struct{}, len(c.Entries))
		kept := make([]x509.RevocationListEntry, 0, len(c.Entries))
		for _, entry := range c.Entries {
			serial := util.GetSerialAsHex(entry.SerialNumber)
			if _, ok := seen[serial]; ok {
				log.Debugf("Removing duplicate revocation entry for serial %s revoked at %s", serial, entry.RevocationTime)
				stats.Removed++
				continue
			}
			seen[serial] = struct{}{}
			kept = append(kept, entry)
		}
		c.Entries = kept
	}

	return stats
}
