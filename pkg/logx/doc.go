// Package logx configures procbot's structured logging.
//
// Logger is a thin value type over zerolog:
//   - console output stays human readable (short timestamp + file:line caller)
//   - file output is JSON lines
//   - an optional Telegram sink forwards WARN+ lines to an admin chat, rate limited
//
// Components derive their own logger with With(logx.String("comp", "...")).
package logx
