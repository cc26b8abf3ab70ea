package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

// ExpiryWarning is how close to NotAfter a certificate is reported as
// expiring soon.
const ExpiryWarning = 30 * 24 * time.Hour

// CertificateInfo describes a leaf certificate.
type CertificateInfo struct {
	Subject  string    `json:"subject"`
	Issuer   string    `json:"issuer"`
	DNSNames []string  `json:"dns_names,omitempty"`
	NotAfter time.Time `json:"not_after"`
}

// ExpiresIn returns the time left before NotAfter, relative to now.
func (i *CertificateInfo) ExpiresIn(now time.Time) time.Duration {
	return i.NotAfter.Sub(now)
}

// ExpiringSoon reports whether the certificate expires within ExpiryWarning.
func (i *CertificateInfo) ExpiringSoon(now time.Time) bool {
	return i.ExpiresIn(now) < ExpiryWarning
}

func infoFor(cert *x509.Certificate) *CertificateInfo {
	return &CertificateInfo{
		Subject:  cert.Subject.String(),
		Issuer:   cert.Issuer.String(),
		DNSNames: cert.DNSNames,
		NotAfter: cert.NotAfter,
	}
}

// Inspect reads the first certificate of a PEM file.
func Inspect(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%s: no PEM certificate found", certFile)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return infoFor(cert), nil
}

// validateLeaf checks that the leaf of cert is currently valid.
func validateLeaf(cert *tls.Certificate, now time.Time) (*x509.Certificate, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return nil, errors.New("certificate chain is empty")
	}
	leaf := cert.Leaf
	if leaf == nil {
		var err error
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
	}
	if now.Before(leaf.NotBefore) {
		return nil, fmt.Errorf("certificate is not valid before %s", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return nil, fmt.Errorf("certificate expired on %s", leaf.NotAfter.Format(time.RFC3339))
	}
	return leaf, nil
}
