// Package logx configures nyordd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional toast sink (warn+ lines surfaced as in-app toasts,
//     min-level gated and rate limited)
package logx
