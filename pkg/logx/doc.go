// Package logx is alertbot's structured logging layer.
//
// logx.Logger wraps zerolog and is passed around by value:
//   - console output is short and readable (timestamp, file:line caller)
//   - the optional file sink writes JSON lines
//   - the optional Telegram sink forwards warnings to the log group, rate limited
//
// Service.Apply swaps sinks and levels at runtime for config hot reload.
package logx
