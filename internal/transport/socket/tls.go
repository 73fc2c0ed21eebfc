package socket

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// ServerTLSConfig loads the importer's certificate and key.
func ServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errs.Config("socket.ServerTLSConfig", fmt.Errorf("load certificate: %w", err))
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig trusts the system CA bundle plus caFile (if set) and
// verifies the server certificate against serverName.
func ClientTLSConfig(caFile, serverName string) (*tls.Config, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}

	if caFile != "" {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errs.Config("socket.ClientTLSConfig", fmt.Errorf("read CA file %s: %w", caFile, err))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errs.Configf("socket.ClientTLSConfig", "parse CA certificate from %s: invalid PEM data", caFile)
		}
	}

	return &tls.Config{
		RootCAs:    rootCAs,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}, nil
}
