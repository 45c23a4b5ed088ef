package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "creditmint/pkg/domain-errors"
)

const sampleAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

// TestParseIdentity_Invariants covers the trust boundary where external strings become
// identities: malformed input and the null identity never get through.
func TestParseIdentity_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty string", "", true},
		{"whitespace only", "   ", true},
		{"not hex", "company-ltd", true},
		{"too short", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeA", true},
		{"too long", sampleAddress + "00", true},
		{"null identity", "0x0000000000000000000000000000000000000000", true},
		{"null byte injection", "0x5aAeb6053F3E94C9b9A0\x009f33669435E7Ef1BeAed", true},
		{"oversized input", strings.Repeat("a", 1000), true},

		{"checksummed", sampleAddress, false},
		{"lowercase", strings.ToLower(sampleAddress), false},
		{"without prefix", strings.TrimPrefix(sampleAddress, "0x"), false},
		{"surrounding whitespace", "  " + sampleAddress + " ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseIdentity(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sampleAddress, id.Hex())
			assert.False(t, id.IsNull())
		})
	}
}

func TestIdentity_JSONRoundTrip(t *testing.T) {
	id, err := ParseIdentity(sampleAddress)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]Identity{"to": id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"to":"`+sampleAddress+`"}`, string(raw))

	var decoded map[string]Identity
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, id, decoded["to"])
}

func TestNullIdentity(t *testing.T) {
	assert.True(t, NullIdentity.IsNull())
	assert.True(t, Identity{}.IsNull())
	assert.Equal(t, "0x0000000000000000000000000000000000000000", NullIdentity.Hex())
}
