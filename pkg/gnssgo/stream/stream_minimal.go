package stream

import (
	"github.com/bramburn/gnssgo/pkg/gnssgo/util"
)

// TickGet returns the current tick count in milliseconds
func TickGet() uint32 {
	return util.TickGet()
}

// Tracet forwards a trace message to util.Tracet, which discards it
func Tracet(level int, format string, args ...interface{}) {
	util.Tracet(level, format, args...)
}
