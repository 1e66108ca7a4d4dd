package cli

import (
	"testing"
	"time"

	"ride-dispatch/internal/general/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		name     string
		args     []string
		wantMode string
		wantRest []string
		wantErr  bool
	}{
		{"flag", []string{"--mode=dispatch-service", "--config=x.yaml"}, ModeDispatch, []string{"--config=x.yaml"}, false},
		{"alias flag", []string{"--mode=m"}, ModeMigrate, nil, false},
		{"subcommand", []string{"dispatch", "--max-concurrent=5"}, ModeDispatch, []string{"--max-concurrent=5"}, false},
		{"missing", []string{"--config=x.yaml"}, "", []string{"--config=x.yaml"}, true},
		{"unknown", []string{"--mode=ride-service"}, "", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mode, rest, err := ParseMode(tc.args)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantMode, mode)
			assert.Equal(t, tc.wantRest, rest)
		})
	}
}

func TestGenerateToken(t *testing.T) {
	token, claims, err := GenerateToken("secret", "oncall-1", "operator", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, jwt.RoleOperator, claims.Role)

	_, parsed, err := jwt.NewManager("secret", time.Hour).ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, "oncall-1", parsed.Subject)

	_, _, err = GenerateToken("secret", "x", "PASSENGER", time.Hour)
	assert.Error(t, err)
}
