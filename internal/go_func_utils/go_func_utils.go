package go_func_utils

import "runtime/debug"
import "log"

func SafeGo(logger *log.Logger, fn func()) {
	// the curses UI owns the terminal, so a bare panic in a goroutine would
	// be lost with the screen - get it into the log file first, then crash
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC: %v\n%s", r, debug.Stack())
				panic(r)
			}
		}()
		fn()
	}()
}
