package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	standardtls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestGenerateSelfSignedCert_Defaults(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	if leaf.Subject.CommonName != "localhost" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "localhost")
	}
	if !slices.Contains(leaf.DNSNames, "localhost") {
		t.Errorf("DNS SANs: %v does not contain localhost", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IP SANs: got %v, want [127.0.0.1]", leaf.IPAddresses)
	}

	validity := leaf.NotAfter.Sub(leaf.NotBefore)
	if validity < selfSignedValidity-time.Hour || validity > selfSignedValidity+time.Hour {
		t.Errorf("validity: got %v, want about %v", validity, selfSignedValidity)
	}

	ecKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		t.Fatal("public key is not ECDSA")
	}
	if ecKey.Curve != elliptic.P256() {
		t.Errorf("curve: got %v, want P-256", ecKey.Curve.Params().Name)
	}
}

func TestGenerateSelfSignedCert_Hosts(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert("mailer.internal", "10.0.0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	if leaf.Subject.CommonName != "mailer.internal" {
		t.Errorf("CN: got %q", leaf.Subject.CommonName)
	}
	if !slices.Equal(leaf.DNSNames, []string{"mailer.internal"}) {
		t.Errorf("DNS SANs: got %v", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "10.0.0.5" {
		t.Errorf("IP SANs: got %v", leaf.IPAddresses)
	}
}

func TestServerConfig_SelfSigned(t *testing.T) {
	t.Parallel()

	cfg, err := ServerConfig("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates: got %d, want 1", len(cfg.Certificates))
	}
	if cfg.MinVersion != standardtls.VersionTLS12 {
		t.Errorf("MinVersion: got %d, want TLS 1.2", cfg.MinVersion)
	}
}

func TestServerConfig_FromFiles(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key, ok := cert.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatal("private key is not ECDSA")
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := ServerConfig(certFile, keyFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("Certificates: got %d, want 1", len(cfg.Certificates))
	}
}

func TestServerConfig_FileNotFound(t *testing.T) {
	t.Parallel()

	if _, err := ServerConfig("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Error("expected error for nonexistent files, got nil")
	}
}

func TestServerConfig_HalfConfigured(t *testing.T) {
	t.Parallel()

	if _, err := ServerConfig("/etc/cert.pem", ""); err == nil {
		t.Error("expected error when only cert_file is set")
	}
}

func TestClientConfig(t *testing.T) {
	t.Parallel()

	cfg := ClientConfig("smtp.gmail.com", nil)
	if cfg.ServerName != "smtp.gmail.com" {
		t.Errorf("ServerName: got %q", cfg.ServerName)
	}
	if cfg.RootCAs != nil {
		t.Error("RootCAs: want nil for system pool")
	}
	if cfg.MinVersion != standardtls.VersionTLS12 {
		t.Errorf("MinVersion: got %d, want TLS 1.2", cfg.MinVersion)
	}
}

func TestCertPool(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool, err := CertPool(cert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leaf, _ := x509.ParseCertificate(cert.Certificate[0])
	if _, err := leaf.Verify(x509.VerifyOptions{Roots: pool, DNSName: "localhost"}); err != nil {
		t.Errorf("leaf does not verify against its own pool: %v", err)
	}

	if _, err := CertPool(nil); err == nil {
		t.Error("expected error for nil certificate")
	}
}
