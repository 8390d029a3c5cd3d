package tlsutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/feedline/pkg/security"
)

// mtlsFixture holds generated cert/key file paths for an mTLS handshake test.
type mtlsFixture struct {
	serverCertFile string
	serverKeyFile  string
	clientCertFile string
	clientKeyFile  string
	clientCAFile   string
}

func setupMTLSFixture(t *testing.T) mtlsFixture {
	t.Helper()

	tmpDir := t.TempDir()

	serverCertPEM, serverKeyPEM := generateTestCert(t)
	// Self-signed client cert doubles as the CA that validates it
	clientCertPEM, clientKeyPEM := generateTestCertWithCN(t, "test-client")

	fx := mtlsFixture{
		serverCertFile: filepath.Join(tmpDir, "server-cert.pem"),
		serverKeyFile:  filepath.Join(tmpDir, "server-key.pem"),
		clientCertFile: filepath.Join(tmpDir, "client-cert.pem"),
		clientKeyFile:  filepath.Join(tmpDir, "client-key.pem"),
		clientCAFile:   filepath.Join(tmpDir, "client-ca.pem"),
	}

	require.NoError(t, os.WriteFile(fx.serverCertFile, serverCertPEM, 0644))
	require.NoError(t, os.WriteFile(fx.serverKeyFile, serverKeyPEM, 0600))
	require.NoError(t, os.WriteFile(fx.clientCertFile, clientCertPEM, 0644))
	require.NoError(t, os.WriteFile(fx.clientKeyFile, clientKeyPEM, 0600))
	require.NoError(t, os.WriteFile(fx.clientCAFile, clientCertPEM, 0644))

	return fx
}

// startMTLSServer starts an httptest server that requires client certificates.
func startMTLSServer(t *testing.T, fx mtlsFixture) *httptest.Server {
	t.Helper()

	serverCfg := security.ServerTLSConfig{
		Enabled:  true,
		CertFile: fx.serverCertFile,
		KeyFile:  fx.serverKeyFile,
	}
	mtlsCfg := security.ServerMTLSConfig{
		Enabled:           true,
		ClientCAFiles:     []string{fx.clientCAFile},
		RequireClientCert: true,
	}

	serverTLSConfig, err := LoadServerTLSConfigWithMTLS(serverCfg, mtlsCfg)
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			http.Error(w, "No client certificate", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := httptest.NewUnstartedServer(handler)
	server.TLS = serverTLSConfig
	server.StartTLS()
	t.Cleanup(server.Close)

	return server
}

func TestMTLSHandshake_ClientWithCert(t *testing.T) {
	fx := setupMTLSFixture(t)
	server := startMTLSServer(t, fx)

	clientTLSConfig, err := LoadClientTLSConfigWithMTLS(
		security.ClientTLSConfig{
			InsecureSkipVerify: true, // Skip server cert validation for test
		},
		security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: fx.clientCertFile,
			KeyFile:  fx.clientKeyFile,
		},
	)
	require.NoError(t, err)

	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: clientTLSConfig,
		},
	}

	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}

func TestMTLSHandshake_ClientWithoutCert(t *testing.T) {
	fx := setupMTLSFixture(t)
	server := startMTLSServer(t, fx)

	// Client without mTLS enabled provides no certificate
	clientTLSConfig, err := LoadClientTLSConfig(security.ClientTLSConfig{
		InsecureSkipVerify: true,
	})
	require.NoError(t, err)

	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: clientTLSConfig,
		},
	}

	// Handshake should fail because the server requires a client cert
	resp, err := httpClient.Get(server.URL)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
}
