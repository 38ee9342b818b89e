package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
)

func NewRandomAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)

	return account
}

// SignMessage signs message with the account, failing the test on error
func SignMessage(t *testing.T, account *common.Account, message []byte) []byte {
	signature, err := account.Sign(message)
	require.NoError(t, err)

	return signature
}
