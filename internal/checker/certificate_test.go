package checker

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-monitor/internal/models"
)

func intp(v int) *int { return &v }

func TestClassifyCertificate(t *testing.T) {
	cases := []struct {
		name   string
		result CertificateResult
		want   models.CheckStatus
	}{
		{"healthy", CertificateResult{Valid: true, DaysRemaining: intp(90)}, models.StatusOK},
		{"just above threshold", CertificateResult{Valid: true, DaysRemaining: intp(15)}, models.StatusOK},
		{"at threshold", CertificateResult{Valid: true, DaysRemaining: intp(14)}, models.StatusWarning},
		{"expires today", CertificateResult{Valid: true, DaysRemaining: intp(0)}, models.StatusWarning},
		{"expired", CertificateResult{Valid: false, DaysRemaining: intp(-1)}, models.StatusError},
		{"negative but flagged valid", CertificateResult{Valid: true, DaysRemaining: intp(-3)}, models.StatusError},
		{"transport error", CertificateResult{Error: "connection refused"}, models.StatusError},
		{"no days", CertificateResult{Valid: true}, models.StatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyCertificate(tc.result, 14))
		})
	}
}

func TestClassifyCertificate_AllDays(t *testing.T) {
	const threshold = 30
	for d := -10; d <= 60; d++ {
		got := ClassifyCertificate(CertificateResult{Valid: d >= 0, DaysRemaining: intp(d)}, threshold)
		switch {
		case d < 0:
			assert.Equal(t, models.StatusError, got, "d=%d", d)
		case d <= threshold:
			assert.Equal(t, models.StatusWarning, got, "d=%d", d)
		default:
			assert.Equal(t, models.StatusOK, got, "d=%d", d)
		}
	}
}

func TestDaysRemaining_Floors(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 4, DaysRemaining(now.Add(5*24*time.Hour-time.Minute), now))
	assert.Equal(t, 5, DaysRemaining(now.Add(5*24*time.Hour), now))
	assert.Equal(t, -1, DaysRemaining(now.Add(-time.Minute), now))
}

// tlsServer serves a self-signed certificate for 127.0.0.1 valid in the
// given window and returns the host, port and certificate.
func tlsServer(t *testing.T, notBefore, notAfter time.Time) (string, int, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(4242),
		Subject:               pkix.Name{CommonName: "monitor.test", Organization: []string{"Sentinel Test"}, Country: []string{"NL"}},
		Issuer:                pkix.Name{CommonName: "monitor.test"},
		DNSNames:              []string{"monitor.test", "www.monitor.test"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}}}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	addr := srv.Listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, cert
}

func TestInspect_ExtractsMetadata(t *testing.T) {
	now := time.Now()
	host, port, cert := tlsServer(t, now.Add(-24*time.Hour), now.Add(120*24*time.Hour))

	res := NewCertificateInspector(2*time.Second).Inspect(context.Background(), host, port)

	require.Empty(t, res.Error)
	assert.True(t, res.Valid)
	assert.False(t, res.ChainValid, "self-signed cert is not trusted by system roots")
	assert.Equal(t, "monitor.test", res.Subject.CommonName)
	assert.Equal(t, "Sentinel Test", res.Subject.Organization)
	assert.Equal(t, "NL", res.Subject.Country)
	assert.Equal(t, []string{"monitor.test", "www.monitor.test"}, res.SANs)
	assert.Equal(t, "1092", res.SerialNumber)
	assert.Len(t, res.Fingerprint, 32*3-1)
	assert.NotEmpty(t, res.Protocol)
	assert.NotEmpty(t, res.CipherSuite)
	assert.Equal(t, 1, res.ChainLength)
	assert.True(t, res.HostnameValid)
	require.NotNil(t, res.DaysRemaining)
	assert.InDelta(t, 119, *res.DaysRemaining, 1)
	assert.True(t, res.ValidTo.Equal(cert.NotAfter))
	assert.Equal(t, models.StatusOK, ClassifyCertificate(res, 14))
}

func TestInspect_ChainValidWithTrustedRoot(t *testing.T) {
	now := time.Now()
	host, port, cert := tlsServer(t, now.Add(-time.Hour), now.Add(60*24*time.Hour))

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	in := NewCertificateInspector(2 * time.Second)
	in.Roots = pool

	res := in.Inspect(context.Background(), host, port)
	assert.True(t, res.ChainValid)
}

func TestInspect_ExpiringSoonIsWarning(t *testing.T) {
	now := time.Now()
	host, port, _ := tlsServer(t, now.Add(-30*24*time.Hour), now.Add(5*24*time.Hour))

	res := NewCertificateInspector(2*time.Second).Inspect(context.Background(), host, port)

	require.Empty(t, res.Error)
	assert.Equal(t, models.StatusWarning, ClassifyCertificate(res, 14))
}

func TestInspect_ExpiredIsError(t *testing.T) {
	now := time.Now()
	host, port, _ := tlsServer(t, now.Add(-60*24*time.Hour), now.Add(-2*24*time.Hour))

	res := NewCertificateInspector(2*time.Second).Inspect(context.Background(), host, port)

	require.Empty(t, res.Error)
	assert.False(t, res.Valid)
	require.NotNil(t, res.DaysRemaining)
	assert.Less(t, *res.DaysRemaining, 0)
	assert.Equal(t, models.StatusError, ClassifyCertificate(res, 14))
}

func TestInspect_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	res := NewCertificateInspector(time.Second).Inspect(context.Background(), "127.0.0.1", port)

	assert.NotEmpty(t, res.Error)
	assert.False(t, res.Valid)
	assert.Nil(t, res.DaysRemaining)
	assert.Nil(t, res.Issuer)
	assert.Nil(t, res.ValidTo)
	assert.Equal(t, models.StatusError, ClassifyCertificate(res, 14))
}

func TestInspect_SilentPeerTimesOut(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	held := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			held <- c
		}
	}()
	t.Cleanup(func() {
		for {
			select {
			case c := <-held:
				c.Close()
			default:
				return
			}
		}
	})

	port := l.Addr().(*net.TCPAddr).Port
	res := NewCertificateInspector(200*time.Millisecond).Inspect(context.Background(), "127.0.0.1", port)

	assert.Equal(t, "connection timed out", res.Error)
	assert.False(t, res.Valid)
}
