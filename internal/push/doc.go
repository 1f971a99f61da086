// Package push owns the push subscription lifecycle.
//
// The manager is a small state machine: the agent must be registered before
// any subscription work, a created subscription is committed locally first
// and then synced to the server best-effort, and IsSubscribed is a pure
// local predicate that never touches the network.
package push
