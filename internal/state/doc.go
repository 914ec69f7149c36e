// Package state owns the single authoritative copy of the client's
// in-memory secrets and caches.
//
// It replaces an ambient singleton with an explicitly passed object whose
// contention policy is part of the API: non-blocking reads report Busy as
// a distinct outcome from Unauthenticated, and cache commits happen under
// the lock before the computing task can yield.
package state
