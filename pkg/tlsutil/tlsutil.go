// Package tlsutil builds crypto/tls configurations from the platform
// security settings. Feedline is mostly a TLS client (feed transports,
// NATS); the one server surface is the metrics endpoint.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/feedline/errors"
	"github.com/c360/feedline/pkg/security"
)

// LoadClientTLSConfig builds the tls.Config used when dialing feed
// endpoints. The system CA bundle is always trusted; CAFiles add to it
// for feeds served under a private CA.
func LoadClientTLSConfig(cfg security.ClientTLSConfig) (*tls.Config, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}

	for _, caFile := range cfg.CAFiles {
		if err := appendCA(rootCAs, caFile); err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "add trusted CA")
		}
	}

	return &tls.Config{
		RootCAs:    rootCAs,
		MinVersion: parseTLSVersion(cfg.MinVersion),
		// Off unless an operator turns it on for a dev endpoint.
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, nil
}

// LoadClientTLSConfigWithMTLS extends the client config with a client
// certificate for feeds that authenticate consumers by cert.
func LoadClientTLSConfigWithMTLS(cfg security.ClientTLSConfig, mtlsCfg security.ClientMTLSConfig) (*tls.Config, error) {
	tlsConfig, err := LoadClientTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !mtlsCfg.Enabled {
		return tlsConfig, nil
	}

	clientCert, err := tls.LoadX509KeyPair(mtlsCfg.CertFile, mtlsCfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfigWithMTLS",
			"load client certificate")
	}
	tlsConfig.Certificates = []tls.Certificate{clientCert}

	return tlsConfig, nil
}

// LoadServerTLSConfig builds the tls.Config for the metrics server.
// Returns nil when TLS is disabled so callers can pass it straight to
// http.Server.
func LoadServerTLSConfig(cfg security.ServerTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}, nil
}

// LoadServerTLSConfigWithMTLS adds client-certificate validation on top
// of the server config, for deployments that gate the metrics endpoint
// behind mTLS.
func LoadServerTLSConfigWithMTLS(cfg security.ServerTLSConfig, mtlsCfg security.ServerMTLSConfig) (*tls.Config, error) {
	tlsConfig, err := LoadServerTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig == nil || !mtlsCfg.Enabled {
		return tlsConfig, nil
	}

	clientCAs := x509.NewCertPool()
	for _, caFile := range mtlsCfg.ClientCAFiles {
		if err := appendCA(clientCAs, caFile); err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfigWithMTLS", "add client CA")
		}
	}
	tlsConfig.ClientCAs = clientCAs

	if mtlsCfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(mtlsCfg.AllowedClientCNs) > 0 {
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(verifiedChains, mtlsCfg.AllowedClientCNs)
		}
	}

	return tlsConfig, nil
}

// appendCA reads one PEM file into the pool.
func appendCA(pool *x509.CertPool, caFile string) error {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return fmt.Errorf("read CA file %s: %w", caFile, err)
	}
	if !pool.AppendCertsFromPEM(caPEM) {
		return fmt.Errorf("parse CA certificate from %s: invalid PEM data", caFile)
	}
	return nil
}

// verifyAllowedClientCN accepts only client certificates whose CN is on
// the allow list. Runs after chain verification, so the cert is already
// trusted at this point.
func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}

	leafCert := chains[0][0]
	for _, allowedCN := range allowedCNs {
		if leafCert.Subject.CommonName == allowedCN {
			return nil
		}
	}

	return fmt.Errorf("client certificate CN '%s' not in allowed list",
		leafCert.Subject.CommonName)
}

// parseTLSVersion maps the config string to a crypto/tls constant,
// defaulting to 1.2.
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS12
	}
}
