package checker

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"sentinel-monitor/internal/models"
)

// DefaultTLSPort is used when a monitor has no port.
const DefaultTLSPort = 443

// CertName is the subset of a distinguished name shown on the dashboard.
type CertName struct {
	CommonName   string `json:"cn,omitempty"`
	Organization string `json:"o,omitempty"`
	Country      string `json:"c,omitempty"`
}

// CertificateResult describes the certificate a server presented.
type CertificateResult struct {
	Domain             string     `json:"domain"`
	Port               int        `json:"port"`
	Valid              bool       `json:"valid"`
	ChainValid         bool       `json:"chain_valid"`
	HostnameValid      bool       `json:"hostname_valid"`
	Issuer             *CertName  `json:"issuer"`
	Subject            *CertName  `json:"subject"`
	SANs               []string   `json:"san"`
	SerialNumber       string     `json:"serial_number,omitempty"`
	Fingerprint        string     `json:"fingerprint,omitempty"`
	ValidFrom          *time.Time `json:"valid_from"`
	ValidTo            *time.Time `json:"valid_to"`
	DaysRemaining      *int       `json:"days_remaining"`
	Protocol           string     `json:"protocol,omitempty"`
	CipherSuite        string     `json:"cipher_suite,omitempty"`
	KeyAlgorithm       string     `json:"key_algorithm,omitempty"`
	SignatureAlgorithm string     `json:"signature_algorithm,omitempty"`
	ChainLength        int        `json:"chain_length"`
	LatencyMS          int64      `json:"latency_ms"`
	CheckedAt          time.Time  `json:"checked_at"`
	Error              string     `json:"error,omitempty"`
}

// CertificateInspector opens TLS connections and reports on the presented
// certificate. Verification is disabled on the connection itself so invalid
// certificates can still be observed; trust is evaluated separately.
type CertificateInspector struct {
	Timeout time.Duration
	// Roots used for the chain_valid verdict; nil means the system pool.
	Roots *x509.CertPool
	Now   func() time.Time
}

// NewCertificateInspector returns an inspector with the given handshake timeout.
func NewCertificateInspector(timeout time.Duration) *CertificateInspector {
	if timeout <= 0 {
		timeout = DefaultTLSTimeout
	}
	return &CertificateInspector{Timeout: timeout, Now: time.Now}
}

// Inspect connects to domain:port. It always returns a result; on failure
// Error is set and the certificate fields stay empty.
func (i *CertificateInspector) Inspect(ctx context.Context, domain string, port int) CertificateResult {
	if port <= 0 {
		port = DefaultTLSPort
	}
	now := i.now()
	res := CertificateResult{Domain: domain, Port: port, CheckedAt: now}

	ctx, cancel := context.WithTimeout(ctx, i.Timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: i.Timeout},
		Config: &tls.Config{
			ServerName:         domain,
			InsecureSkipVerify: true, //nolint:gosec // observing, not trusting
		},
	}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(domain, strconv.Itoa(port)))
	res.LatencyMS = elapsedMS(start)
	if err != nil {
		res.Error = describeDialError(err)
		return res
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		res.Error = "server presented no certificate"
		return res
	}

	leaf := state.PeerCertificates[0]
	res.Issuer = nameOf(leaf.Issuer)
	res.Subject = nameOf(leaf.Subject)
	res.SANs = append([]string{}, leaf.DNSNames...)
	res.SerialNumber = strings.ToUpper(leaf.SerialNumber.Text(16))
	res.Fingerprint = fingerprint(leaf.Raw)
	validFrom, validTo := leaf.NotBefore.UTC(), leaf.NotAfter.UTC()
	res.ValidFrom, res.ValidTo = &validFrom, &validTo
	days := DaysRemaining(validTo, now)
	res.DaysRemaining = &days
	res.Protocol = tls.VersionName(state.Version)
	res.CipherSuite = tls.CipherSuiteName(state.CipherSuite)
	res.KeyAlgorithm = leaf.PublicKeyAlgorithm.String()
	res.SignatureAlgorithm = leaf.SignatureAlgorithm.String()
	res.ChainLength = len(state.PeerCertificates)
	res.ChainValid = i.verifyChain(state.PeerCertificates, now)
	res.HostnameValid = leaf.VerifyHostname(domain) == nil
	res.Valid = days >= 0
	return res
}

func (i *CertificateInspector) now() time.Time {
	if i.Now == nil {
		return time.Now()
	}
	return i.Now()
}

func (i *CertificateInspector) verifyChain(chain []*x509.Certificate, now time.Time) bool {
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		Roots:         i.Roots,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	return err == nil
}

// DaysRemaining is floor((validTo - now) / 24h); negative once expired.
func DaysRemaining(validTo, now time.Time) int {
	return int(math.Floor(validTo.Sub(now).Hours() / 24))
}

// ClassifyCertificate maps a result to ok/warning/error against the alert
// threshold in days.
func ClassifyCertificate(r CertificateResult, thresholdDays int) models.CheckStatus {
	if r.Error != "" || !r.Valid || r.DaysRemaining == nil || *r.DaysRemaining < 0 {
		return models.StatusError
	}
	if *r.DaysRemaining <= thresholdDays {
		return models.StatusWarning
	}
	return models.StatusOK
}

func nameOf(n pkix.Name) *CertName {
	return &CertName{
		CommonName:   n.CommonName,
		Organization: first(n.Organization),
		Country:      first(n.Country),
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

func describeDialError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "connection timed out"
	default:
		return err.Error()
	}
}
