package toolchain

import "path/filepath"

// Handle is the result of a successful provisioning: Dir is guaranteed by the
// upstream packaging convention to contain the interpreter. Nothing here
// checks the filesystem.
type Handle struct {
	Dir      string
	Identity string
	Triple   Triple
}

// NewHandle returns the handle for c.
func NewHandle(c Config) Handle {
	return Handle{Dir: PythonDir(c), Identity: DistName(c), Triple: c.Triple}
}

// Executable returns the interpreter path inside Dir following the
// install_only layout: python.exe at the top on Windows, bin/python3 elsewhere.
func (h Handle) Executable() string {
	if h.Triple.Windows() {
		return filepath.Join(h.Dir, "python.exe")
	}
	return filepath.Join(h.Dir, "bin", "python3")
}
