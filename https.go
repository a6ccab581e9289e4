package wiregate

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

func tlsListener(cert, key string) ListenerFactory {
	return func(network, addr string) (net.Listener, error) {
		certificate, err := tls.LoadX509KeyPair(cert, key)
		if err != nil {
			return nil, err
		}

		return tls.Listen(network, addr, &tls.Config{
			Certificates: []tls.Certificate{certificate},
		})
	}
}

func autoTLSListener(domains ...string) ListenerFactory {
	return func(network, addr string) (net.Listener, error) {
		manager := &autocert.Manager{
			Prompt: autocert.AcceptTOS,
		}

		if len(domains) > 0 {
			manager.HostPolicy = autocert.HostWhitelist(domains...)
		}

		if cache, err := certCacheDir(); err == nil {
			manager.Cache = autocert.DirCache(cache)
		}

		return tls.Listen(network, addr, &tls.Config{
			GetCertificate: manager.GetCertificate,
		})
	}
}

func certCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, "wiregate-autocert")

	return dir, os.MkdirAll(dir, 0o700)
}

// selfSignedCert writes (or reuses) a localhost certificate pair in the cache
// directory and returns the file paths.
func selfSignedCert() (cert, key string, err error) {
	cache, err := certCacheDir()
	if err != nil {
		return "", "", err
	}

	cert = filepath.Join(cache, "localhost.crt")
	key = filepath.Join(cache, "localhost.key")

	if fileExists(cert) && fileExists(key) {
		return cert, key, nil
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"wiregate localhost"}},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return "", "", err
	}

	if err = writePEM(cert, "CERTIFICATE", der); err != nil {
		return "", "", err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}

	if err = writePEM(key, "PRIVATE KEY", privDER); err != nil {
		return "", "", err
	}

	return cert, key, nil
}

func writePEM(path, blockType string, der []byte) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return pem.Encode(file, &pem.Block{Type: blockType, Bytes: der})
}

func fileExists(path string) bool {
	stat, err := os.Stat(path)

	return err == nil && !stat.IsDir()
}
