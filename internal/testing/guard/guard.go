// Package guard forces test mode on for any test binary that imports it, so
// binaries skip runtime side effects when exercised under go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CLEARWAY_TEST_MODE") == "" {
			_ = os.Setenv("CLEARWAY_TEST_MODE", "1")
		}
	})
}
