// Package crl implements deduplication and re-signing of certificate
// revocation lists.
package crl

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// PEM block type of an encoded CRL
const pemType = "X509 CRL"

var (
	oidCRLNumber      = asn1.ObjectIdentifier{2, 5, 29, 20}
	oidAuthorityKeyID = asn1.ObjectIdentifier{2, 5, 29, 35}
)

// CRL is one parsed revocation list. Its revocation entries are replaced
// by Prune and its number, raw encoding and signature by Resign. After
// any mutation the CRL is only valid again once Resign has run.
type CRL struct {
	// Issuer is the distinguished name of the CA that signed the CRL
	Issuer string
	// Entries is the ordered sequence of revocation entries
	Entries []x509.RevocationListEntry
	// Number is the value of the CRL number extension, or nil if the
	// CRL carries none
	Number *big.Int
	// Extensions holds the CRL extensions other than the CRL number and
	// the authority key identifier, in their original order. Both omitted
	// extensions are regenerated on re-sign.
	Extensions []pkix.Extension
	// ThisUpdate and NextUpdate are carried over unchanged on re-sign
	ThisUpdate time.Time
	NextUpdate time.Time
	// Raw is the DER encoding the CRL was parsed from; Resign replaces it
	Raw []byte

	list *x509.RevocationList
}

// Store holds the CRLs being pruned together with the CA key material
// that verifies and re-signs them
type Store struct {
	// The parsed CRLs, in the order they appeared in the input file
	CRLs []*CRL
	// The CA certificate the CRLs are verified against
	Cert *x509.Certificate
	// The CA private key used for re-signing
	Key crypto.Signer
}

// CheckSignatureFrom verifies that the CRL's current signature was made
// by the given CA certificate
func (c *CRL) CheckSignatureFrom(issuer *x509.Certificate) error {
	return c.list.CheckSignatureFrom(issuer)
}

// ToPEM returns the PEM encoding of the CRL's current raw DER bytes
func (c *CRL) ToPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: c.Raw})
}

// ParsePEM parses one or more PEM-encoded CRLs from buf. Multiple CRLs
// may share a file as concatenated PEM blocks; their order is preserved.
// A buffer containing no PEM block is tried as a single DER-encoded CRL.
func ParsePEM(buf []byte) ([]*CRL, error) {
	var crls []*CRL

	rest := buf
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != pemType {
			continue
		}
		c, err := parseDER(block.Bytes)
		if err != nil {
			return nil, err
		}
		crls = append(crls, c)
	}

	if len(crls) == 0 {
		c, err := parseDER(buf)
		if err != nil {
			return nil, errors.New("No CRL found in the supplied data")
		}
		crls = append(crls, c)
	}

	return crls, nil
}

func parseDER(der []byte) (*CRL, error) {
	list, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, errors.Wrap(err, "Error parsing CRL")
	}
	return fromRevocationList(list), nil
}

func fromRevocationList(list *x509.RevocationList) *CRL {
	var extras []pkix.Extension
	for _, ext := range list.Extensions {
		if ext.Id.Equal(oidCRLNumber) || ext.Id.Equal(oidAuthorityKeyID) {
			continue
		}
		extras = append(extras, ext)
	}

	return &CRL{
		Issuer:     list.Issuer.String(),
		Entries:    list.RevokedCertificateEntries,
		Number:     list.Number,
		Extensions: extras,
		ThisUpdate: list.ThisUpdate,
		NextUpdate: list.NextUpdate,
		Raw:        list.Raw,
		list:       list,
	}
}
