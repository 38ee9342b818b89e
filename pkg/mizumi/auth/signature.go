package auth

import (
	"context"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mizumi-finance/mizumi-server/pkg/metrics"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
)

const (
	metricsStructName = "auth.signature_verifier"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
)

// SignatureVerifier verifies request payloads signed by owner or admin accounts
type SignatureVerifier struct {
	log *logrus.Entry
}

func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{
		log: logrus.StandardLogger().WithField("type", "auth/signature_verifier"),
	}
}

// Authenticate verifies that message was signed by the signer's private key
func (v *SignatureVerifier) Authenticate(ctx context.Context, signer *common.Account, message, signature []byte) error {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "Authenticate").End()

	if signer == nil {
		return ErrInvalidSignature
	}

	if !signer.Verify(message, signature) {
		v.log.WithFields(logrus.Fields{
			"method":    "Authenticate",
			"signer":    signer.PublicKey().ToBase58(),
			"signature": base58.Encode(signature),
		}).Info("message is not signature verified")
		return ErrInvalidSignature
	}
	return nil
}

// AuthenticateAdmin verifies the admin signed the message and is authorized
// by the policy
func (v *SignatureVerifier) AuthenticateAdmin(ctx context.Context, policy AdminPolicy, admin *common.Account, message, signature []byte) error {
	if err := v.Authenticate(ctx, admin, message, signature); err != nil {
		return err
	}
	return RequireAdmin(ctx, policy, admin)
}
