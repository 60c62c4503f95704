package pruner

import (
	"crypto/x509"
	"io/ioutil"
	"time"

	"github.com/cloudflare/cfssl/helpers"
	"github.com/cloudflare/cfssl/log"
	"github.com/pkg/errors"
	"github.com/rkcloudchain/crlprune/crl"
	caerrors "github.com/rkcloudchain/crlprune/errors"
)

const certificateError = "Invalid certificate in file"

// loadMaterial reads and parses the CA certificate, the CA private key
// and the CRL file, and verifies every CRL against the certificate.
// Any failure is fatal to the run; no partial pruning is attempted.
func loadMaterial(certFile, keyFile, crlFile string) (*crl.Store, error) {
	log.Debugf("Loading CA certificate from %s", certFile)
	certPEM, err := ioutil.ReadFile(certFile)
	if err != nil {
		return nil, caerrors.NewLoadError("Failed to read CA certificate file '%s': %s", certFile, err)
	}
	cert, err := helpers.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, caerrors.NewLoadError(certificateError+" '%s': %s", certFile, err)
	}
	if err = validateDates(cert); err != nil {
		return nil, caerrors.NewLoadError(certificateError+" '%s': %s", certFile, err)
	}
	if !canSignCRL(cert) {
		return nil, caerrors.NewLoadError("The CA certificate in '%s' does not have the 'crl sign' key usage", certFile)
	}

	log.Debugf("Loading CA private key from %s", keyFile)
	keyPEM, err := ioutil.ReadFile(keyFile)
	if err != nil {
		return nil, caerrors.NewLoadError("Failed to read CA key file '%s': %s", keyFile, err)
	}
	key, err := helpers.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, caerrors.NewLoadError("Invalid private key in file '%s': %s", keyFile, err)
	}

	log.Debugf("Loading CRLs from %s", crlFile)
	crlPEM, err := ioutil.ReadFile(crlFile)
	if err != nil {
		return nil, caerrors.NewLoadError("Failed to read CRL file '%s': %s", crlFile, err)
	}
	crls, err := crl.ParsePEM(crlPEM)
	if err != nil {
		return nil, caerrors.NewLoadError("Invalid CRL in file '%s': %s", crlFile, err)
	}
	for _, c := range crls {
		if err = c.CheckSignatureFrom(cert); err != nil {
			return nil, caerrors.NewLoadError("CRL issued by '%s' does not verify against the CA certificate in '%s': %s", c.Issuer, certFile, err)
		}
	}

	return &crl.Store{CRLs: crls, Cert: cert, Key: key}, nil
}

func validateDates(cert *x509.Certificate) error {
	log.Debug("Check CA certificate for valid dates")

	currentTime := time.Now().UTC()
	if currentTime.After(cert.NotAfter) {
		return errors.New("Certificate provided has expired")
	}
	if currentTime.Before(cert.NotBefore) {
		return errors.New("Certificate provided not valid until later date")
	}

	return nil
}

func canSignCRL(cert *x509.Certificate) bool {
	return cert.KeyUsage&x509.KeyUsageCRLSign != 0
}
