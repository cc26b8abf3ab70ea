package audit

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

const packagePrefix = "mercator-hq/ledger/pkg/audit."

// hostInfo is static for the life of the process.
var hostInfo = sync.OnceValue(func() Environment {
	env := Environment{
		Culture: os.Getenv("LANG"),
	}
	if u, err := user.Current(); err == nil {
		env.UserName = u.Username
	}
	if h, err := os.Hostname(); err == nil {
		env.MachineName = h
		if i := strings.IndexByte(h, '.'); i > 0 {
			env.DomainName = h[i+1:]
		}
	}
	if len(os.Args) > 0 {
		env.ModuleName = filepath.Base(os.Args[0])
	}
	return env
})

func captureEnvironment(includeCaller bool) *Environment {
	env := hostInfo()
	if includeCaller {
		env.CallingMethodName = callerName()
	}
	return &env
}

// callerName returns the first function on the stack outside this package's
// non-test sources.
func callerName() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		internal := strings.HasPrefix(frame.Function, packagePrefix) && !strings.HasSuffix(frame.File, "_test.go")
		if !internal && frame.Function != "" {
			return frame.Function
		}
		if !more {
			return ""
		}
	}
}
