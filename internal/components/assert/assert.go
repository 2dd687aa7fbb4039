// Package assert holds wiring checks, they panic because a failure is a
// programming error rather than something a caller could recover from.
package assert

import "fmt"

// NotNil panics when a required dependency of `owner` was not wired in.
func NotNil(owner string, value any) {
	if value == nil {
		panic(fmt.Sprintf("%s: expected value to be not nil", owner))
	}
}

// NotEmpty panics when a required setting of `owner` is empty.
func NotEmpty(owner, name, value string) {
	if value == "" {
		panic(fmt.Sprintf("%s: expected %s to be non-empty", owner, name))
	}
}
