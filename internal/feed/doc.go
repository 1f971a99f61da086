// Package feed keeps the local store in sync with the notification server.
//
// The live path is a websocket stream; when it cannot be established (or
// dies past its reconnect budget) the feed degrades to interval polling.
// A periodic full refresh runs either way, so a missed stream message is a
// delay, not a loss.
package feed
