package bip32

import (
	"encoding/hex"
	"testing"

	"custody-wallet/pkg/bip39"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMasterKeyFromSeed(t *testing.T) {
	mnemonicService := bip39.NewMnemonicService()
	mnemonic, err := mnemonicService.GenerateMnemonic(128)
	require.NoError(t, err)
	seed := mnemonicService.MnemonicToSeed(mnemonic, "")

	wallet, err := NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NotNil(t, wallet.MasterKey())
	assert.True(t, wallet.MasterKey().IsPrivate())

	_, err = NewMasterKeyFromSeed([]byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

// BIP-32 官方测试向量 1
func TestDerivePathVector1(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	wallet, err := NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	child, err := wallet.DerivePath("m/0'/1")
	require.NoError(t, err)
	pub, err := child.Neuter()
	require.NoError(t, err)
	assert.Equal(t,
		"xpub6ASuArnXKPbfEwhqN6e3mwBcDTgzisQN1wXN9BJcM47sSikHjJf3UFHKkNAWbWMiGj7Wf5uMash7SyYq527Hqck2AxYysAA7xmALppuCkwQ",
		pub.String())
	assert.False(t, pub.IsPrivate())
}

func TestPublicDerivationMatchesPrivate(t *testing.T) {
	seed, _ := hex.DecodeString("fffcf9f6da3247d8a846f4b6113e6173")
	wallet, err := NewMasterKeyFromSeed(seed, nil)
	require.NoError(t, err)

	account, err := wallet.DerivePath("m/44'/60'/0'")
	require.NoError(t, err)
	accountPub, err := account.Neuter()
	require.NoError(t, err)

	fromPriv, err := wallet.DerivePath("m/44'/60'/0'/0/7")
	require.NoError(t, err)
	fromPrivPub, _ := fromPriv.Neuter()

	// 只用 xpub 派生，不再需要种子
	parsed, err := KeyFromString(accountPub.String())
	require.NoError(t, err)
	fromPub, err := parsed.DerivePath("0/7")
	require.NoError(t, err)

	assert.Equal(t, fromPrivPub.String(), fromPub.String())

	_, err = parsed.Derive(hdkeychain.HardenedKeyStart)
	assert.ErrorIs(t, err, ErrHardenedFromPub)
}

func TestParsePath(t *testing.T) {
	idx, err := ParsePath("m/84h/0'/0'/0/3")
	require.NoError(t, err)
	assert.Equal(t, []uint32{84 + hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart, 0, 3}, idx)

	idx, err = ParsePath("m")
	require.NoError(t, err)
	assert.Empty(t, idx)

	_, err = ParsePath("m/44'/abc")
	assert.True(t, IsInvalidPath(err))

	coin, ok := CoinType("m/44'/144'/0'/0/1")
	assert.True(t, ok)
	assert.Equal(t, uint32(144), coin)

	_, ok = CoinType("m/44'")
	assert.False(t, ok)
}
