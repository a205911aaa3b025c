package signer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestKeySignerSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	chainID := big.NewInt(56)
	s := NewKeySigner(chainID)
	account := s.AddKey(key)
	require.Equal(t, []common.Address{account}, s.Accounts())

	to := common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	tx := types.NewTx(&types.LegacyTx{Nonce: 7, To: &to, Gas: 21000, GasPrice: big.NewInt(5e9)})

	signed, err := s.Sign(context.Background(), tx, account)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	require.Equal(t, account, sender)
	require.Equal(t, uint64(7), signed.Nonce())
}

func TestKeySignerUnknownAccount(t *testing.T) {
	s := NewKeySigner(big.NewInt(56))
	tx := types.NewTx(&types.LegacyTx{Gas: 21000, GasPrice: big.NewInt(1)})

	_, err := s.Sign(context.Background(), tx, common.HexToAddress("0x01"))
	require.True(t, errors.Is(err, ErrUnknownAccount))
}

func TestKeySignerAddHexKey(t *testing.T) {
	s := NewKeySigner(big.NewInt(1))
	account, err := s.AddHexKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), account)

	_, err = s.AddHexKey("not-a-key")
	require.Error(t, err)
}
