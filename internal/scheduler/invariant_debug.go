//go:build evfsdebug

package scheduler

import "fmt"

func invariantViolated(msg string, args ...any) {
	panic(fmt.Sprintf("scheduler invariant violated: %s %v", msg, args))
}
