// Package security provides platform-wide security configuration types
package security

// Config holds platform-wide security configuration
type Config struct {
	TLS TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// TLSConfig holds TLS configuration for HTTP/WebSocket servers and clients
type TLSConfig struct {
	Server ServerTLSConfig `json:"server,omitempty" yaml:"server,omitempty"`
	Client ClientTLSConfig `json:"client,omitempty" yaml:"client,omitempty"`
}

// ServerMTLSConfig holds mTLS configuration for servers (client certificate validation)
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty" yaml:"client_ca_files,omitempty"`         // CA certs to trust for client validation
	RequireClientCert bool     `json:"require_client_cert,omitempty" yaml:"require_client_cert,omitempty"` // true = require, false = optional
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty" yaml:"allowed_client_cns,omitempty"`   // Optional CN whitelist
}

// ServerTLSConfig holds TLS configuration for HTTP/WebSocket servers
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	CertFile   string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"` // "1.2" or "1.3"

	// mTLS support
	MTLS ServerMTLSConfig `json:"mtls,omitempty" yaml:"mtls,omitempty"`
}

// ClientMTLSConfig holds mTLS configuration for clients (client certificate provision)
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"` // Client certificate
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`   // Client private key
}

// ClientTLSConfig holds TLS configuration for HTTP/WebSocket clients
// Always uses system CA bundle first, CAFiles are ADDITIONAL trusted CAs
type ClientTLSConfig struct {
	CAFiles            []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty" yaml:"min_version,omitempty"`

	// mTLS support
	MTLS ClientMTLSConfig `json:"mtls,omitempty" yaml:"mtls,omitempty"`
}
