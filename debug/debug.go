// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go - cold-path diagnostic helpers
//
// Purpose:
//   - Logs infrequent events and failures with a fixed tag.
//   - Used only in cold paths: startup, teardown, fatal errors.
//
// Notes:
//   - Routed through the process-wide slog default, so output follows
//     whatever logger main installed.
//
// ⚠️ Never invoke in hot loops; use only in failure diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import "log/slog"

// DropError logs err under prefix at error level. A nil err logs the prefix
// alone at info level (used as a cheap trace tag).
func DropError(prefix string, err error) {
	if err != nil {
		slog.Default().Error(prefix, "err", err)
		return
	}
	slog.Default().Info(prefix)
}

// DropMessage logs message under prefix at info level.
func DropMessage(prefix, message string) {
	slog.Default().Info(prefix, "detail", message)
}
