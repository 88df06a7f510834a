// Package logx configures sitedigest's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Reconfiguration at runtime when the config file changes
package logx
