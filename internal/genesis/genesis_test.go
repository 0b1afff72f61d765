package genesis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    []lifecycle.Grant
		wantErr string
	}{
		{
			name: "valid",
			doc: `{"members":[
				{"principal":"relay","capabilities":["Submit","Submit"]},
				{"principal":"city-works","capabilities":["Authority"]},
				{"principal":"council","capabilities":["Admin","Authority"]}
			]}`,
			want: []lifecycle.Grant{
				{Principal: "city-works", Capability: lifecycle.CapabilityAuthority},
				{Principal: "council", Capability: lifecycle.CapabilityAuthority},
				{Principal: "council", Capability: lifecycle.CapabilityAdmin},
				{Principal: "relay", Capability: lifecycle.CapabilitySubmit},
			},
		},
		{
			name:    "unknown capability",
			doc:     `{"members":[{"principal":"x","capabilities":["Root"]}]}`,
			wantErr: "invalid capability",
		},
		{
			name:    "no admin",
			doc:     `{"members":[{"principal":"relay","capabilities":["Submit"]}]}`,
			wantErr: "grants no Admin",
		},
		{
			name:    "missing principal",
			doc:     `{"members":[{"capabilities":["Admin"]}]}`,
			wantErr: "without principal",
		},
		{
			name:    "malformed",
			doc:     `{"members":`,
			wantErr: "failed to parse",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse([]byte(tc.doc))
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"members":[{"principal":"council","capabilities":["Admin"]}]}`), 0o600))

	grants, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []lifecycle.Grant{{Principal: "council", Capability: lifecycle.CapabilityAdmin}}, grants)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
