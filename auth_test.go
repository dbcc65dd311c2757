package mqttcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowAllAuthenticator(t *testing.T) {
	result, err := AllowAll.Authenticate(context.Background(), &AuthContext{ClientID: "anyone"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, ReasonSuccess, result.ReasonCode)
}

func TestAuthenticatorFunc(t *testing.T) {
	deny := AuthenticatorFunc(func(_ context.Context, authCtx *AuthContext) (*AuthResult, error) {
		if authCtx.Username == "admin" {
			return &AuthResult{Success: true, ReasonCode: ReasonSuccess}, nil
		}
		return &AuthResult{Success: false, ReasonCode: ReasonBadUserNameOrPassword}, nil
	})

	ok, err := deny.Authenticate(context.Background(), &AuthContext{Username: "admin"})
	require.NoError(t, err)
	assert.True(t, ok.Success)

	rejected, err := deny.Authenticate(context.Background(), &AuthContext{Username: "guest"})
	require.NoError(t, err)
	assert.False(t, rejected.Success)
	assert.Equal(t, ReasonBadUserNameOrPassword, rejected.ReasonCode)
}
