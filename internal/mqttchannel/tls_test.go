package mqttchannel

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSelfSignedPair(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "edge-device-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	certPath = filepath.Join(dir, "device-cert.pem")
	keyPath = filepath.Join(dir, "device-key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}

func TestLoadTLSConfigWithExplicitRootCertFile(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedPair(t, dir)

	cfg, err := LoadTLSConfig(TLSFiles{
		DeviceCertPath: certPath,
		DeviceKeyPath:  keyPath,
		RootCertPath:   certPath,
		ServerName:     "mqtt.example.com",
	})
	if err != nil {
		t.Fatalf("LoadTLSConfig: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected one client certificate, got %d", len(cfg.Certificates))
	}
	if cfg.RootCAs == nil {
		t.Fatal("expected a populated root CA pool")
	}
	if cfg.ServerName != "mqtt.example.com" {
		t.Fatalf("unexpected server name: %s", cfg.ServerName)
	}
}

func TestLoadTLSConfigWithRootCertDirectory(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedPair(t, dir)

	certsDir := filepath.Join(dir, "roots")
	if err := os.Mkdir(certsDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	if err := os.WriteFile(filepath.Join(certsDir, "root.pem"), data, 0o600); err != nil {
		t.Fatalf("write root: %v", err)
	}

	cfg, err := LoadTLSConfig(TLSFiles{
		DeviceCertPath: certPath,
		DeviceKeyPath:  keyPath,
		RootCertPath:   certsDir,
	})
	if err != nil {
		t.Fatalf("LoadTLSConfig: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Fatal("expected a populated root CA pool from directory scan")
	}
}

func TestLoadTLSConfigMissingCertFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadTLSConfig(TLSFiles{
		DeviceCertPath: filepath.Join(dir, "missing-cert.pem"),
		DeviceKeyPath:  filepath.Join(dir, "missing-key.pem"),
	})
	if err == nil {
		t.Fatal("expected error for missing certificate files")
	}
}
