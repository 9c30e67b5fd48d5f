package mqttchannel

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSFiles names the certificate material a cloud-side MQTT Client Actor
// dials with: a device certificate + private key for mutual TLS, and a
// root CA bundle to verify the broker.
type TLSFiles struct {
	DeviceCertPath string
	DeviceKeyPath  string
	RootCertPath   string
	ServerName     string
}

// LoadTLSConfig builds a *tls.Config for mutual TLS against a cloud
// broker. RootCertPath may name either a single PEM file or a directory of
// PEM files.
func LoadTLSConfig(files TLSFiles) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(files.DeviceCertPath, files.DeviceKeyPath)
	if err != nil {
		return nil, fmt.Errorf("mqttchannel: loading device certificate: %w", err)
	}

	pool, err := loadRootCertPool(files.RootCertPath)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   files.ServerName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func loadRootCertPool(path string) (*x509.CertPool, error) {
	if path == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return x509.NewCertPool(), nil
		}
		return pool, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("mqttchannel: root cert path %q: %w", path, err)
	}

	pool := x509.NewCertPool()
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("mqttchannel: reading root cert dir %q: %w", path, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := addCertFile(pool, path+"/"+entry.Name()); err != nil {
				return nil, err
			}
		}
		return pool, nil
	}

	if err := addCertFile(pool, path); err != nil {
		return nil, err
	}
	return pool, nil
}

func addCertFile(pool *x509.CertPool, path string) error {
	pem, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("mqttchannel: reading root cert %q: %w", path, err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("mqttchannel: %q contains no valid PEM certificates", path)
	}
	return nil
}
