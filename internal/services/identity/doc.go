// Package identity manages the local actor's cryptographic identity: the
// key-exchange account sealed into the vault, the initial credential
// publication, and the one-time key replenishment policy.
package identity
