/*
Package memox implements confidential memos for ledger transfers: short
messages encrypted to the receiver of a transfer, stored on a public ledger
along with the transfer, readable only by sender and receiver.

Memox implements the memo scheme of graphene-style ledgers. Both parties have
a memo key pair on the secp256k1 curve. The sender combines their private
memo key with the receiver's public memo key into a shared secret, the affine
X coordinate of the multiplied point. A nonce and the shared secret are
hashed into an AES-256 key and CBC initialization vector. The message is
prefixed with 4 bytes of its SHA-256 checksum and encrypted. What travels on
the ledger is the envelope: both public memo keys, the decimal nonce and the
hex ciphertext. The receiver computes the same shared secret from their
private key and the sender's public key. The scheme, including its odd
corners like stripping leading zero bytes from the shared secret, is
reproduced exactly: messages written by existing wallets must decrypt, and
messages written here must decrypt elsewhere.

Keys are serialized the way such ledgers serialize them: public keys as an
address prefix (like "STM") followed by base58 of the compressed curve point
with a 4-byte RIPEMD-160 checksum, private keys in wallet import format. The
address prefix is an argument throughout this package, and key identity does
not depend on it: the same key serialized for two different ledgers is still
the same key.

EncodeMemo and DecodeMemo are the cipher. Encrypt and Decrypt implement the
policy around it: absent memos pass through as absent, the sender's private
key is looked up in a KeyStore, and decryption first tries the receiver role
and then the sender role, so one keyring reads both incoming and outgoing
memos.

Private keys live in a keyring, a text file with one key pair per line,
usually ".memox/keyring" found by walking up from the working directory, see
NearestMemoxDir. A keyring file can be sealed with a passphrase, using
argon2id key derivation and AES-256-GCM, see SealKeyring and OpenKeyring.

Errors returned by memox are typically wrapped with additional information.
Use errors.Is() or Unwrap to check for errors.

Use cmd/memox to initialize a ".memox" directory, manage keys and encrypt
and decrypt individual memos. Use cmd/memoxscan to decrypt memos in bulk
from a ledger dump.
*/
package memox
