package config

import (
	"os"
	"strings"
)

// AutoSyncOnReconnect controls whether an offline -> online transition kicks
// off a reconciliation pass without user interaction.
//
// Set via env:
// - SYNC_AUTO_ON_RECONNECT=false
//
// Default: enabled. Disabling it leaves the queue to the manual sync button.
func AutoSyncOnReconnect() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_AUTO_ON_RECONNECT")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// RetryBackoffEnabled gates the per-action backoff window. Turning it off
// restores retry-every-pass behavior (useful when reproducing sync bugs).
//
// Set via env:
// - SYNC_RETRY_BACKOFF=false
func RetryBackoffEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_RETRY_BACKOFF")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
