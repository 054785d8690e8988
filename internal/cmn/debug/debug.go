// Package debug provides assertion helpers that panic on a failed
// condition when Enabled (the HATRAC_DEBUG environment variable is set)
// and are no-ops otherwise, mirroring the teacher's cmn/debug package,
// which uses a "debug" build tag instead of a runtime switch.
package debug

import (
	"fmt"
	"os"
	"strings"

	"github.com/informatics-isi-edu/hatrac/internal/aaa/glog"
)

// Enabled is toggled by the HATRAC_DEBUG environment variable so that
// assertions can be turned on in development without a build-tag dance.
var Enabled = os.Getenv("HATRAC_DEBUG") != ""

func Assert(cond bool, a ...interface{}) {
	if Enabled && !cond {
		panicf(a...)
	}
}

func Assertf(cond bool, f string, a ...interface{}) {
	if Enabled && !cond {
		panicf(fmt.Sprintf(f, a...))
	}
}

func AssertMsg(cond bool, msg string) {
	if Enabled && !cond {
		panicf(msg)
	}
}

func AssertNoErr(err error) {
	if Enabled && err != nil {
		panicf(err)
	}
}

func panicf(a ...interface{}) {
	msg := "hatrac debug assertion failed: " + strings.TrimSpace(fmt.Sprint(a...))
	glog.Errorln(msg)
	panic(msg)
}
