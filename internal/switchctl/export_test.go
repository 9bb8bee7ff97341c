package switchctl

import "time"

// Test-only exports for the external switchctl_test package, which cannot
// reach unexported identifiers directly.

// SetSleep replaces the accessor's retry sleep function.
func SetSleep(a *Accessor, f func(time.Duration)) { a.sleep = f }

// Contains exposes the contains helper.
var Contains = contains
