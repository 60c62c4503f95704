package crl

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"math/big"

	"github.com/cloudflare/cfssl/log"
	"github.com/pkg/errors"
)

var one = big.NewInt(1)

// Resign increments each CRL's number extension by exactly one and
// recomputes its signature with the CA key, replacing the previous raw
// encoding. The digest is fixed to SHA-256. In the reissued encoding the
// CRL number extension precedes all carried-over extensions; the
// authority key identifier is regenerated from the CA certificate.
//
// A CRL without a number extension is rejected: reissuing such a CRL
// would require fabricating a number, and a partial reissue risks an
// inconsistent signature.
func Resign(crls []*CRL, cert *x509.Certificate, key crypto.Signer) error {
	algo, err := signatureAlgorithm(key)
	if err != nil {
		return err
	}

	for _, c := range crls {
		if c.Number == nil {
			return errors.Errorf("CRL issued by '%s' has no CRL number extension; refusing to reissue", c.Issuer)
		}
		c.Number = new(big.Int).Add(c.Number, one)
		log.Debugf("Re-signing CRL issued by '%s' with CRL number %s", c.Issuer, c.Number)

		template := &x509.RevocationList{
			SignatureAlgorithm:        algo,
			RevokedCertificateEntries: c.Entries,
			Number:                    c.Number,
			ThisUpdate:                c.ThisUpdate,
			NextUpdate:                c.NextUpdate,
			ExtraExtensions:           c.Extensions,
		}
		der, err := x509.CreateRevocationList(rand.Reader, template, cert, key)
		if err != nil {
			return errors.Wrapf(err, "Failed to re-sign CRL issued by '%s'", c.Issuer)
		}
		list, err := x509.ParseRevocationList(der)
		if err != nil {
			return errors.Wrapf(err, "Failed to parse re-signed CRL issued by '%s'", c.Issuer)
		}
		c.Raw = der
		c.list = list
	}

	return nil
}

// signatureAlgorithm returns the SHA-256 based signature algorithm for
// the given CA key
func signatureAlgorithm(key crypto.Signer) (x509.SignatureAlgorithm, error) {
	switch key.Public().(type) {
	case *rsa.PublicKey:
		return x509.SHA256WithRSA, nil
	case *ecdsa.PublicKey:
		return x509.ECDSAWithSHA256, nil
	default:
		return x509.UnknownSignatureAlgorithm, errors.Errorf("Unsupported CA key type %T", key.Public())
	}
}
