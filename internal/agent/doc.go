// Package agent manages the background delivery agent: a systemd user unit
// that keeps a push transport alive while the main daemon is down, plus the
// unix socket protocol the two sides speak.
//
// The daemon side is the client. It registers (enables and starts) the agent
// unit, negotiates push subscriptions over the socket, and relays inbound
// navigation requests onto the event bus. Agent updates are never applied
// silently: a changed unit is restarted only after the configured confirmer
// says yes, and the running agent is told to hand over first.
package agent
