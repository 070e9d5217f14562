package types

import (
	"github.com/eth2028/eth2028/rlp"
)

// DecodeAccountBytes decodes the RLP-encoded leaf value of an account
// trie entry: the 4-element list {nonce, balance, storageRoot, codeHash}.
func DecodeAccountBytes(data []byte) (Account, error) {
	acct := NewAccount()
	if err := rlp.DecodeBytes(data, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// EncodeAccountBytes RLP-encodes an account the same way the account
// trie stores it, the inverse of DecodeAccountBytes.
func EncodeAccountBytes(acct Account) ([]byte, error) {
	return rlp.EncodeToBytes(&acct)
}
