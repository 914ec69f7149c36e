// Package inbox reconciles the federated inbox: it classifies each
// fetched activity as plain, pairwise or group, decrypts through the
// matching session manager, reseals plaintext under the vault key, and
// records processed item ids so repeated passes are idempotent.
package inbox
