package domain

import "errors"

// Error taxonomy for the encryption core. Callers match with errors.Is;
// lower layers wrap these with context via fmt.Errorf("...: %w", err).
var (
	// ErrAuthenticationFailure means a vault open failed: wrong passphrase
	// or corrupted/tampered ciphertext. Fatal to the current operation; the
	// user must re-enter credentials. Not retryable as-is.
	ErrAuthenticationFailure = errors.New("authentication failure: wrong passphrase or corrupted vault data")

	// ErrKeyExchangeFailed means a pairwise establishment could not obtain
	// the peer's identity key or an unused one-time key. Safe to retry after
	// the peer republishes keys.
	ErrKeyExchangeFailed = errors.New("key exchange failed")

	// ErrDecrypt means a ratchet or group decrypt failed. The message is not
	// recoverable with the current session state and must not be retried.
	ErrDecrypt = errors.New("decryption failed")

	// ErrGroupJoinFailed means a welcome failed to parse or join. The
	// conversation stays unresolved this pass; a corrected welcome may
	// arrive later, so the item is eligible for retry next pass.
	ErrGroupJoinFailed = errors.New("group join failed")

	// ErrFormat means an instrument's declared kind does not match its
	// structural shape. The item is skipped and logged; the batch continues.
	ErrFormat = errors.New("instrument format error")

	// ErrTransport means the network gave no response. A reconciliation
	// pass aborts early; partial progress already persisted is kept.
	ErrTransport = errors.New("transport failure")

	// ErrNotFound is returned by session and group lookups with no match.
	ErrNotFound = errors.New("not found")

	// ErrBusy means a non-blocking state read lost to a concurrent holder.
	// Distinct from ErrUnauthenticated so callers can retry instead of
	// degrading to empty state.
	ErrBusy = errors.New("state busy")

	// ErrUnauthenticated means no vault key is loaded into the client state.
	ErrUnauthenticated = errors.New("not authenticated")
)
