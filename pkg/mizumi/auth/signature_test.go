package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/mizumi-finance/mizumi-server/pkg/testutil"
)

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	verifier := NewSignatureVerifier()

	owner := testutil.NewRandomAccount(t)
	malicious := testutil.NewRandomAccount(t)

	message := []byte(uuid.New().String())

	signature := testutil.SignMessage(t, owner, message)
	assert.NoError(t, verifier.Authenticate(ctx, owner, message, signature))

	assert.Equal(t, ErrInvalidSignature, verifier.Authenticate(ctx, owner, message, nil))
	assert.Equal(t, ErrInvalidSignature, verifier.Authenticate(ctx, owner, []byte("tampered"), signature))
	assert.Equal(t, ErrInvalidSignature, verifier.Authenticate(ctx, nil, message, signature))

	signature = testutil.SignMessage(t, malicious, message)
	assert.Equal(t, ErrInvalidSignature, verifier.Authenticate(ctx, owner, message, signature))
}

func TestAuthenticateAdmin(t *testing.T) {
	ctx := context.Background()
	verifier := NewSignatureVerifier()

	admin := testutil.NewRandomAccount(t)
	impostor := testutil.NewRandomAccount(t)
	policy := NewStaticAdminPolicy(admin)

	message := []byte(uuid.New().String())

	assert.NoError(t, verifier.AuthenticateAdmin(ctx, policy, admin, message, testutil.SignMessage(t, admin, message)))
	assert.Equal(t, ErrUnauthorized, verifier.AuthenticateAdmin(ctx, policy, impostor, message, testutil.SignMessage(t, impostor, message)))
	assert.Equal(t, ErrInvalidSignature, verifier.AuthenticateAdmin(ctx, policy, admin, message, testutil.SignMessage(t, impostor, message)))
}
