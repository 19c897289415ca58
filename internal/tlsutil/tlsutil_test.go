package tlsutil

import (
	"crypto/tls"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLSConfig_Defaults(t *testing.T) {
	tc, err := TLSConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), tc.MinVersion)
	assert.NotEmpty(t, tc.CipherSuites)
	assert.False(t, tc.InsecureSkipVerify)
	assert.Nil(t, tc.RootCAs)
}

func TestTLSConfig_CAFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))

	_, err := TLSConfig(Config{CAFile: bad})
	assert.Error(t, err)

	_, err = TLSConfig(Config{CAFile: filepath.Join(dir, "missing.pem")})
	assert.Error(t, err)
}

func TestHTTPClient(t *testing.T) {
	hc, err := HTTPClient(Config{InsecureSkipVerify: true}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, hc.Timeout)

	tr, ok := hc.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
}
