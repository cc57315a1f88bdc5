package clock

import "time"

// processStart approximates boot time where the kernel clock is unavailable
var processStart = time.Now()
