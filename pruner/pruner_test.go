package pruner

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io/ioutil"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rkcloudchain/crlprune/config"
	"github.com/rkcloudchain/crlprune/crl"
	caerrors "github.com/rkcloudchain/crlprune/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t1 = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
	t3 = t1.Add(2 * time.Minute)
)

func makeCA(t *testing.T, cn string) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"CloudChain"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func writeCAFiles(t *testing.T, dir string, cert *x509.Certificate, key *ecdsa.PrivateKey) {
	t.Helper()

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "ca-cert.pem"), certPEM, 0644))

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "ca-key.pem"), keyPEM, 0600))
}

func makeCRLPEM(t *testing.T, cert *x509.Certificate, key crypto.Signer, number int64, entries []x509.RevocationListEntry) []byte {
	t.Helper()

	template := &x509.RevocationList{
		RevokedCertificateEntries: entries,
		Number:                    big.NewInt(number),
		ThisUpdate:                time.Now().Add(-time.Hour),
		NextUpdate:                time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, cert, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "X509 CRL", Bytes: der})
}

func entry(serial int64, revokedAt time.Time) x509.RevocationListEntry {
	return x509.RevocationListEntry{
		SerialNumber:   big.NewInt(serial),
		RevocationTime: revokedAt,
	}
}

// closedPortAddr returns a loopback address nothing is listening on
func closedPortAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func testConfig(dir, serverAddr string) *config.Config {
	return &config.Config{
		CA: config.CAInfo{
			Certfile: filepath.Join(dir, "ca-cert.pem"),
			Keyfile:  filepath.Join(dir, "ca-key.pem"),
			Crlfile:  filepath.Join(dir, "ca-crl.pem"),
		},
		Server: config.ServerInfo{
			Address: serverAddr,
			Timeout: 500 * time.Millisecond,
		},
		Output: config.OutputInfo{
			Backup:   true,
			FileMode: "0644",
		},
	}
}

func TestRunPrunesAndResigns(t *testing.T) {
	dir := t.TempDir()
	cert, key := makeCA(t, "ca")
	writeCAFiles(t, dir, cert, key)

	crlPEM := makeCRLPEM(t, cert, key, 4, []x509.RevocationListEntry{
		entry(10, t1),
		entry(20, t2),
		entry(10, t3),
	})
	crlFile := filepath.Join(dir, "ca-crl.pem")
	require.NoError(t, ioutil.WriteFile(crlFile, crlPEM, 0644))

	p := &Pruner{HomeDir: dir, Config: testConfig(dir, closedPortAddr(t))}
	require.NoError(t, p.Run())

	out, err := ioutil.ReadFile(crlFile)
	require.NoError(t, err)
	crls, err := crl.ParsePEM(out)
	require.NoError(t, err)
	require.Len(t, crls, 1)

	c := crls[0]
	assert.Equal(t, int64(5), c.Number.Int64())
	require.Len(t, c.Entries, 2)
	assert.Equal(t, int64(10), c.Entries[0].SerialNumber.Int64())
	assert.True(t, c.Entries[0].RevocationTime.Equal(t1))
	assert.Equal(t, int64(20), c.Entries[1].SerialNumber.Int64())
	assert.True(t, c.Entries[1].RevocationTime.Equal(t2))
	assert.NoError(t, c.CheckSignatureFrom(cert))

	// the original CRL was backed up before the overwrite
	backup, err := ioutil.ReadFile(crlFile + ".bak")
	require.NoError(t, err)
	assert.Equal(t, crlPEM, backup)
}

func TestRunNoDuplicates(t *testing.T) {
	dir := t.TempDir()
	cert, key := makeCA(t, "ca")
	writeCAFiles(t, dir, cert, key)

	crlPEM := makeCRLPEM(t, cert, key, 4, []x509.RevocationListEntry{
		entry(10, t1),
		entry(20, t2),
	})
	crlFile := filepath.Join(dir, "ca-crl.pem")
	require.NoError(t, ioutil.WriteFile(crlFile, crlPEM, 0644))

	p := &Pruner{HomeDir: dir, Config: testConfig(dir, closedPortAddr(t))}
	require.NoError(t, p.Run())

	// the CRL file is left byte-for-byte untouched and no backup is made
	out, err := ioutil.ReadFile(crlFile)
	require.NoError(t, err)
	assert.Equal(t, crlPEM, out)
	_, err = os.Stat(crlFile + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestRunMultipleCRLs(t *testing.T) {
	dir := t.TempDir()
	cert, key := makeCA(t, "ca")
	writeCAFiles(t, dir, cert, key)

	base := makeCRLPEM(t, cert, key, 7, []x509.RevocationListEntry{
		entry(10, t1),
		entry(10, t2),
	})
	delta := makeCRLPEM(t, cert, key, 8, []x509.RevocationListEntry{
		entry(20, t1),
	})
	crlFile := filepath.Join(dir, "ca-crl.pem")
	require.NoError(t, ioutil.WriteFile(crlFile, append(base, delta...), 0644))

	p := &Pruner{HomeDir: dir, Config: testConfig(dir, closedPortAddr(t))}
	require.NoError(t, p.Run())

	out, err := ioutil.ReadFile(crlFile)
	require.NoError(t, err)
	crls, err := crl.ParsePEM(out)
	require.NoError(t, err)
	require.Len(t, crls, 2)

	// every CRL in the file is re-signed, including the clean delta
	assert.Equal(t, int64(8), crls[0].Number.Int64())
	assert.Len(t, crls[0].Entries, 1)
	assert.Equal(t, int64(9), crls[1].Number.Int64())
	assert.Len(t, crls[1].Entries, 1)
	for _, c := range crls {
		assert.NoError(t, c.CheckSignatureFrom(cert))
	}
}

func TestRunServerOnline(t *testing.T) {
	dir := t.TempDir()
	cert, key := makeCA(t, "ca")
	writeCAFiles(t, dir, cert, key)

	crlPEM := makeCRLPEM(t, cert, key, 4, []x509.RevocationListEntry{
		entry(10, t1),
		entry(10, t2),
	})
	crlFile := filepath.Join(dir, "ca-crl.pem")
	require.NoError(t, ioutil.WriteFile(crlFile, crlPEM, 0644))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	p := &Pruner{HomeDir: dir, Config: testConfig(dir, ln.Addr().String())}
	err = p.Run()
	require.Error(t, err)
	assert.True(t, caerrors.IsOnlineError(err))

	// nothing was mutated
	out, err := ioutil.ReadFile(crlFile)
	require.NoError(t, err)
	assert.Equal(t, crlPEM, out)
}

func TestRunMissingMaterial(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, closedPortAddr(t))

	p := &Pruner{HomeDir: dir, Config: cfg}
	err := p.Run()
	require.Error(t, err)
	assert.True(t, caerrors.IsLoadError(err))
}

func TestRunBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, closedPortAddr(t))
	cfg.CA.Crlfile = ""

	p := &Pruner{HomeDir: dir, Config: cfg}
	err := p.Run()
	require.Error(t, err)
	assert.True(t, caerrors.IsConfigError(err))
}

func TestLoadMaterialUnverifiableCRL(t *testing.T) {
	dir := t.TempDir()
	cert, key := makeCA(t, "ca")
	writeCAFiles(t, dir, cert, key)

	otherCert, otherKey := makeCA(t, "other-ca")
	crlPEM := makeCRLPEM(t, otherCert, otherKey, 4, []x509.RevocationListEntry{
		entry(10, t1),
	})
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "ca-crl.pem"), crlPEM, 0644))

	cfg := testConfig(dir, closedPortAddr(t))
	_, err := loadMaterial(cfg.CA.Certfile, cfg.CA.Keyfile, cfg.CA.Crlfile)
	require.Error(t, err)
	assert.True(t, caerrors.IsLoadError(err))
	assert.Contains(t, err.Error(), "does not verify")
}

func TestLoadMaterialCertWithoutCRLSign(t *testing.T) {
	dir := t.TempDir()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "no-crl-sign"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	writeCAFiles(t, dir, cert, key)

	cfg := testConfig(dir, closedPortAddr(t))
	_, err = loadMaterial(cfg.CA.Certfile, cfg.CA.Keyfile, cfg.CA.Crlfile)
	require.Error(t, err)
	assert.True(t, caerrors.IsLoadError(err))
	assert.Contains(t, err.Error(), "crl sign")
}

func TestWriteCRLsBadFileMode(t *testing.T) {
	dir := t.TempDir()
	cert, key := makeCA(t, "ca")
	writeCAFiles(t, dir, cert, key)

	crlPEM := makeCRLPEM(t, cert, key, 4, []x509.RevocationListEntry{
		entry(10, t1),
		entry(10, t2),
	})
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "ca-crl.pem"), crlPEM, 0644))

	cfg := testConfig(dir, closedPortAddr(t))
	cfg.Output.FileMode = "99z"

	p := &Pruner{HomeDir: dir, Config: cfg}
	err := p.Run()
	require.Error(t, err)
	assert.True(t, caerrors.IsConfigError(err))
}

func TestServerOnlineUnconfigured(t *testing.T) {
	p := &Pruner{Config: &config.Config{}}
	assert.False(t, p.serverOnline())
}
