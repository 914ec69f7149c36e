// Package instrument builds and opens the typed envelopes that move key
// material alongside federated activities.
//
// Secret-bearing instruments are hashed over their plaintext and sealed
// under the vault key; public key material travels in the clear; protocol
// ciphertexts ride as-is. Classification of an activity's instrument set
// decides whether the reconciler resolves it against a pairwise or group
// session.
package instrument
