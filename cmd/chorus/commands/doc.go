// Package commands defines the chorus CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init          Create a vault, generate keys, and publish them
//   - fingerprint   Print the identity fingerprint
//   - publish-keys  Publish the identity key and unpublished one-time keys
//   - replenish     Top up the published one-time key pool
//   - key-exchange  Establish an encrypted session with a peer
//   - send          Encrypt and send a pairwise or group message
//   - group-create  Create a group session for a conversation
//   - group-invite  Hand the conversation key to a member
//   - reconcile     Fetch and decrypt the inbox
//
// # Implementation
//
// The root command builds a dependency graph (stores, services, federation
// client) before any subcommand runs, so handlers can use a shared app
// context with timeouts and connection pooling.
package commands
