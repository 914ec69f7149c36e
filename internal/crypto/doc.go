// Package crypto exposes the primitives the encryption core is built on.
//
// Contents
//
//   - Vault sealing: Argon2id key derivation, ChaCha20-Poly1305 seal/open,
//     canonical-JSON content hashing (DeriveKey, Seal, Open, Hash,
//     CanonicalHash)
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// All key functions return fixed-size array types defined in
// internal/domain to avoid accidental reallocations. Callers should treat
// returned secrets as sensitive and wipe them when practical.
package crypto
