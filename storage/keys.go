package storage

import "encoding/binary"

// Key prefixes for the persisted layout (spec'd external interface): every
// component that touches the KV store builds keys through these helpers so
// the layout lives in exactly one place.
var (
	prefixBlockByID     = []byte("blocks:id:")
	prefixBlockByHeight = []byte("blocks:height:")
	prefixAccount       = []byte("accounts:")
	keyChainTip         = []byte("chain:tip")
	prefixChainState    = []byte("chain:state:")
	prefixBFTRecord     = []byte("bft:")
	keyBFTFinalized     = []byte("bft:finalized")
	prefixTemp          = []byte("temp:")
	prefixForgerUsed    = []byte("forger:used_hashes:")
	prefixUndo          = []byte("undo:")
	prefixForgerOnion   = []byte("forger:onion:")
	prefixForgerForged  = []byte("forger:last_forged:")
	prefixWalletKey     = []byte("wallet:keystore:")
	prefixTxIndex       = []byte("idx:tx:")
)

func BlockByIDKey(id []byte) []byte {
	return append(append([]byte{}, prefixBlockByID...), id...)
}

func BlockByHeightKey(height uint64) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], height)
	return append(append([]byte{}, prefixBlockByHeight...), be[:]...)
}

func AccountKey(address []byte) []byte {
	return append(append([]byte{}, prefixAccount...), address...)
}

func ChainTipKey() []byte { return keyChainTip }

func ChainStateKey(key []byte) []byte {
	return append(append([]byte{}, prefixChainState...), key...)
}

func BFTRecordKey(validator []byte) []byte {
	return append(append([]byte{}, prefixBFTRecord...), validator...)
}

func BFTFinalizedKey() []byte { return keyBFTFinalized }

func TempBlockKey(id []byte) []byte {
	return append(append([]byte{}, prefixTemp...), id...)
}

func ForgerUsedIndexKey(address []byte) []byte {
	return append(append([]byte{}, prefixForgerUsed...), address...)
}

// UndoKey addresses the inverse-operation journal for a given block id. Not
// part of the spec's literal prefix list but required by its undo-journal
// requirement; see DESIGN.md.
func UndoKey(blockID []byte) []byte {
	return append(append([]byte{}, prefixUndo...), blockID...)
}

// AccountPrefix, TempPrefix expose the raw prefixes for iteration (used by
// chain's ComputeRoot-style full account scans and temp-region pruning).
func AccountPrefix() []byte   { return prefixAccount }
func TempPrefix() []byte      { return prefixTemp }
func BFTRecordPrefix() []byte { return prefixBFTRecord }

// ForgerOnionKey stores a delegate's hash-onion seed and length as plain,
// unencrypted JSON. Not part of
// the spec's literal prefix list — see DESIGN.md — but required to persist
// the onion itself rather than only its consumed-index watermark.
func ForgerOnionKey(address []byte) []byte {
	return append(append([]byte{}, prefixForgerOnion...), address...)
}

// ForgerLastHeightKey stores the height of the last block a delegate
// actually forged, so a restarted forger can correctly declare
// maxHeightPreviouslyForged without having to replay the whole chain
// looking for its own blocks. See DESIGN.md.
func ForgerLastHeightKey(address []byte) []byte {
	return append(append([]byte{}, prefixForgerForged...), address...)
}

// WalletKeystoreKey stores a delegate's encrypted private key. See
// DESIGN.md.
func WalletKeystoreKey(address []byte) []byte {
	return append(append([]byte{}, prefixWalletKey...), address...)
}

func WalletKeystorePrefix() []byte { return prefixWalletKey }

// TxIndexKey addresses the secondary id -> block-location index that lets
// getTransactionBy{Id,Ids} find a committed transaction without scanning
// every block. Not part of the spec's literal prefix list — see DESIGN.md.
func TxIndexKey(txID []byte) []byte {
	return append(append([]byte{}, prefixTxIndex...), txID...)
}
