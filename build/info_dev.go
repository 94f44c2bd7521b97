//go:build !prod

package build

import "time"

var Name = "tiered"
var Version = "v0.0.0-development"
var BuildDate = time.Now().Format("2006-01-02 15:04:05")
var Commit = "unknown"
var Mode = ModeDevelopment
