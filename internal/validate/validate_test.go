package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRPCURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
		wantWarn bool
	}{
		{"valid https", "https://api.opensvm.com", false, false},
		{"non-https rejected", "http://api.opensvm.com", true, false},
		{"empty rejected", "", true, false},
		{"no host rejected", "https://", true, false},
		{"loopback warns", "https://127.0.0.1:8899", false, true},
		{"localhost warns", "https://localhost:8899", false, true},
		{"private 10.x warns", "https://10.0.0.5", false, true},
		{"private 172.16-31 warns", "https://172.20.0.5", false, true},
		{"172.40 is not private", "https://172.40.0.5", false, false},
		{"too long rejected", "https://" + strings.Repeat("a", 2048) + ".com", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warn, err := ValidateRPCURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWarn, warn)
		})
	}
}

func TestValidateCommitment(t *testing.T) {
	for _, ok := range []string{"processed", "confirmed", "finalized"} {
		assert.NoError(t, ValidateCommitment(ok))
	}
	assert.Error(t, ValidateCommitment(""))
	assert.Error(t, ValidateCommitment("fast"))
}

func TestValidateNetworkID(t *testing.T) {
	assert.NoError(t, ValidateNetworkID("mainnet-beta"))
	assert.Error(t, ValidateNetworkID(""))
	assert.Error(t, ValidateNetworkID(strings.Repeat("a", 65)))
	assert.Error(t, ValidateNetworkID("has a space"))
}

func TestValidateNetworkName(t *testing.T) {
	assert.NoError(t, ValidateNetworkName("Mainnet Beta"))
	assert.Error(t, ValidateNetworkName(""))
	assert.Error(t, ValidateNetworkName(strings.Repeat("a", 129)))
	assert.Error(t, ValidateNetworkName("bad\x00name"))
}

func TestSanitizeForLogging(t *testing.T) {
	assert.Equal(t, "https://h", SanitizeForLogging("https://h/path?q=v"))

	long := strings.Repeat("a", 150)
	got := SanitizeForLogging(long)
	assert.True(t, strings.HasSuffix(got, truncationMarker))
	assert.LessOrEqual(t, len(got), 115)

	short := "short string"
	assert.Equal(t, short, SanitizeForLogging(short))
}

func TestValidateCAIP2(t *testing.T) {
	assert.NoError(t, ValidateCAIP2("solana:5eykt4usfv8p8njdqm"))
	assert.NoError(t, ValidateCAIP2("eip155:1"))
	assert.Error(t, ValidateCAIP2("nocolon"))
	assert.Error(t, ValidateCAIP2("UPPER:ref"))
	assert.Error(t, ValidateCAIP2(":ref"))
	assert.Error(t, ValidateCAIP2("ns:"))
}
