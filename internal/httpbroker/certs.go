package httpbroker

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// buildRootCAs returns the system certificate pool augmented with any
// certificates found under certsDir. Files are tried as PEM first, then
// as raw DER, per SPEC_FULL.md §4.6. A missing or empty certsDir is not
// an error — the system pool alone is returned.
func buildRootCAs(certsDir string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	if certsDir == "" {
		return pool, nil
	}

	entries, err := os.ReadDir(certsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return pool, nil
		}
		return nil, fmt.Errorf("read certs dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(certsDir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read cert %s: %w", path, err)
		}

		if ok := pool.AppendCertsFromPEM(raw); ok {
			continue
		}

		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, fmt.Errorf("parse cert %s as PEM or DER: %w", path, err)
		}
		pool.AddCert(cert)
	}

	return pool, nil
}
