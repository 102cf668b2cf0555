// Package live runs the live leaderboard: a [Signal] that decides whether a
// session is in progress, a [Tracker] that owns the per-session roster and
// retirement state and reconciles the timing feeds on every tick, and a
// [Board] that holds the latest snapshot and fans it out to publishers.
//
// Every poll source allows one request in flight. Starting a poll cancels
// the previous one and results are applied only if their token is still the
// newest, so a slow response can never overwrite a newer one.
package live
