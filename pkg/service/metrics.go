package service

import (
	"runtime"
)

func getMemoryUsage() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc)
}

func getGoroutineCount() int64 {
	return int64(runtime.NumGoroutine())
}
