// Package account manages the key-exchange account: the long-term
// identity keys and the pool of consumable one-time keys. Consumption is
// destructive and publication state is tracked per key so the owner knows
// when to replenish.
package account
