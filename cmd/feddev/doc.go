// Command feddev runs an in-memory federation instance for local
// development: a key directory with destructive one-time-key claims and
// per-actor inbox queues. Actor handles double as usernames; nothing is
// persisted across restarts.
package main
