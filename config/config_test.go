package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/internal/testutil"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Genesis.Alloc[pub.Hex()] = 1000
	cfg.Forging.Delegates = []string{pub.Hex()}
	return cfg
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsWaitThresholdAtOrAboveBlockTime(t *testing.T) {
	cfg := validConfig(t)
	cfg.Forging.WaitThreshold = cfg.Genesis.BlockTime
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestValidateRejectsMissingChainID(t *testing.T) {
	cfg := validConfig(t)
	cfg.Genesis.ChainID = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMalformedAllocKey(t *testing.T) {
	cfg := validConfig(t)
	cfg.Genesis.Alloc["not-hex"] = 5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsPartialTLSConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Network.TLS = &TLSConfig{CACert: "ca.pem"}
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsEmptyTLSConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Network.TLS = &TLSConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestFeePolicyComposesBaseFeeSurcharge(t *testing.T) {
	cfg := validConfig(t)
	cfg.Genesis.MinFeePerByte = 2
	cfg.Genesis.BaseFees = []BaseFee{{ModuleID: 7, AssetID: 1, Fee: 500}}
	fp := cfg.Genesis.FeePolicy()
	assert.Equal(t, uint64(500), fp.BaseFee(7, 1))
	assert.Equal(t, uint64(0), fp.BaseFee(7, 2))
	assert.Equal(t, uint64(2), fp.MinFeePerByte)
}

func TestBootstrapSeedsAllocatedAccounts(t *testing.T) {
	cfg := validConfig(t)
	db := testutil.NewDB()
	c, err := chain.Open(db)
	require.NoError(t, err)

	proposerPriv, proposerPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	block, err := BuildGenesisBlock(&cfg.Genesis, proposerPriv, proposerPub)
	require.NoError(t, err)
	require.NoError(t, Bootstrap(c, db, &cfg.Genesis, block))

	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		pub, err := crypto.PubKeyFromHex(pubkeyHex)
		require.NoError(t, err)
		acc, err := c.GetAccount(pub.Address())
		require.NoError(t, err)
		assert.Equal(t, balance, acc.Balance)
	}
}

func TestBootstrapIsIdempotentAcrossRestarts(t *testing.T) {
	cfg := validConfig(t)
	db := testutil.NewDB()
	c, err := chain.Open(db)
	require.NoError(t, err)

	proposerPriv, proposerPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	block, err := BuildGenesisBlock(&cfg.Genesis, proposerPriv, proposerPub)
	require.NoError(t, err)

	require.NoError(t, Bootstrap(c, db, &cfg.Genesis, block))
	require.NoError(t, Bootstrap(c, db, &cfg.Genesis, block))
	assert.Equal(t, uint64(0), c.Height())
}

func TestSeedAccountsRejectsMalformedKeyEvenIfUnvalidated(t *testing.T) {
	db := testutil.NewDB()
	err := SeedAccounts(db, &GenesisConfig{Alloc: map[string]uint64{"zz": 1}})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestLoadTLSConfigNilForEmptySection(t *testing.T) {
	tlsCfg, err := LoadTLSConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	tlsCfg, err = LoadTLSConfig(&TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}
