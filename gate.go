package perfscope

import "sync/atomic"

// enabled gates every entry point. It is off until Enable or Initialize
// turns it on. Flipping it while scopes are open is allowed, but in-flight
// calls may observe either state.
var enabled atomic.Bool

// Enable turns scope recording on for the whole process.
func Enable() { enabled.Store(true) }

// Disable turns scope recording off. Create and Append return no-op
// handles until it is enabled again.
func Disable() { enabled.Store(false) }

// SetEnabled sets the gate.
func SetEnabled(on bool) { enabled.Store(on) }

// IsEnabled reports whether scopes are being recorded.
func IsEnabled() bool { return enabled.Load() }
