package ctxbridge

import "time"

// timeNow is a package-level variable so tests can pin timestamps.
var timeNow = time.Now
