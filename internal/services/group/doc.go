// Package group manages multi-party sessions per conversation: joining
// from welcomes, the conversation-to-group cache, invitations, and group
// message encryption and decryption.
package group
