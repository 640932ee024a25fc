package config

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/soliduschain/node/errs"
)

// TLSConfig holds paths to the PEM files needed for mTLS between nodes.
// Kept from the teacher's config/tls.go almost unchanged; the consumer
// moved from a length-prefixed TCP listener to network.Node.UseTLS, but
// the certificate/CA loading shape is identical.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// LoadTLSValidate checks that a TLSConfig is either fully specified or
// fully absent, the same all-or-nothing rule the teacher enforced inline
// in Config.Validate.
func LoadTLSValidate(cfg *TLSConfig) error {
	if cfg == nil {
		return nil
	}
	allSet := cfg.CACert != "" && cfg.NodeCert != "" && cfg.NodeKey != ""
	allEmpty := cfg.CACert == "" && cfg.NodeCert == "" && cfg.NodeKey == ""
	if !allSet && !allEmpty {
		return errs.Validation("config: network.tls: ca_cert, node_cert and node_key must be set together or not at all")
	}
	return nil
}

// LoadTLSConfig builds a *tls.Config from the PEM paths in cfg, requiring
// and verifying client certificates against the same CA pool used to trust
// the server — every peer is both an mTLS client and server. Returns
// (nil, nil) when cfg is nil or empty, meaning the caller should fall back
// to plain ws://.
func LoadTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil || (cfg.CACert == "" && cfg.NodeCert == "" && cfg.NodeKey == "") {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.NodeCert, cfg.NodeKey)
	if err != nil {
		return nil, errs.WrapSchema(err, "config: load node cert/key")
	}

	caPEM, err := os.ReadFile(cfg.CACert)
	if err != nil {
		return nil, errs.WrapSchema(err, "config: read CA cert")
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, errs.Validation("config: failed to parse CA certificate %s", cfg.CACert)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		RootCAs:      caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
