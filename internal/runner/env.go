package runner

import (
	"os"
	"strings"
	"sync"
)

// environmentLock serializes mutation of the process-global environment for
// execution paths whose call primitive reads the ambient environment instead
// of accepting an explicit one (the singularity CLI). Held for the whole
// invocation so concurrent calls never observe each other's overlay.
var environmentLock sync.Mutex

// nativeOverlay is the environment injected for every directly-run pipeline:
// C locale for consistent sort output, TMPDIR kept inside the working
// directory so tools generating large temporaries keep them co-located, and
// vg's full-traceback diagnostics.
func nativeOverlay() map[string]string {
	return map[string]string{
		"LC_ALL":            "C",
		"TMPDIR":            ".",
		"VG_FULL_TRACEBACK": "1",
	}
}

// containerOverlay is the per-tool environment for containerized runs. The
// Rscript images break when TMPDIR is redirected and want a writable package
// library instead.
func containerOverlay(tool string) map[string]string {
	env := map[string]string{"LC_ALL": "C"}
	if tool != "Rscript" {
		env["TMPDIR"] = "."
	}
	if tool == "Rscript" {
		env["R_LIBS"] = "/tmp"
	}
	if tool == "vg" {
		env["VG_FULL_TRACEBACK"] = "1"
	}
	return env
}

// mergedEnviron returns a private copy of the ambient environment with the
// overlay applied, for passing explicitly to a child process. The caller's
// global environment is never touched.
func mergedEnviron(overlay map[string]string) []string {
	environ := os.Environ()
	merged := make([]string, 0, len(environ)+len(overlay))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if ok {
			if _, shadowed := overlay[name]; shadowed {
				continue
			}
		}
		merged = append(merged, kv)
	}
	for name, val := range overlay {
		merged = append(merged, name+"="+val)
	}
	return merged
}

type envSnapshot struct {
	value string
	set   bool
}

// withAmbientEnv applies the overlay to the process-global environment, runs
// fn, and restores the exact previous state: values are reset and variables
// that were unset before are unset again. The environment lock is held for
// the duration of fn.
func withAmbientEnv(overlay map[string]string, fn func() error) error {
	environmentLock.Lock()
	defer environmentLock.Unlock()

	old := make(map[string]envSnapshot, len(overlay))
	for name, val := range overlay {
		prev, ok := os.LookupEnv(name)
		old[name] = envSnapshot{value: prev, set: ok}
		if err := os.Setenv(name, val); err != nil {
			restoreEnv(old)
			return err
		}
	}
	defer restoreEnv(old)

	return fn()
}

func restoreEnv(old map[string]envSnapshot) {
	for name, snap := range old {
		if snap.set {
			os.Setenv(name, snap.value)
		} else {
			os.Unsetenv(name)
		}
	}
}
