package mpsgemm

import (
	"github.com/mixprec/mpsgemm/cublas"
)

// Interposer abstracts the platform-specific mechanism that redirects
// the vendor SGEMM entry point into this runtime. Implementations must
// make Install atomic: on failure no redirection may be left in place.
type Interposer interface {
	// Symbol names the entry point being interposed on.
	Symbol() string
	// Install redirects the entry point to fn and returns the original
	// binding so the runtime can forward to it.
	Install(fn cublas.SgemmFunc) (orig cublas.SgemmFunc, err error)
}

// symTableInterposer interposes through the cublas package's symbol
// table. Other platforms would substitute a dynamic-loader based
// implementation behind the same interface.
type symTableInterposer struct {
	symbol string
}

func (i symTableInterposer) Symbol() string {
	return i.symbol
}

func (i symTableInterposer) Install(fn cublas.SgemmFunc) (cublas.SgemmFunc, error) {
	return cublas.InstallSymbol(i.symbol, fn)
}

// install performs the one-time redirection of the vendor symbol to the
// runtime's dispatcher. Repeated calls are no-ops. A failed install
// leaves no partial hijack state behind.
func (r *Runtime) install(ip Interposer) error {
	r.installMu.Lock()
	defer r.installMu.Unlock()
	if r.installed {
		return nil
	}
	orig, err := ip.Install(r.hijackedSgemm)
	if err != nil {
		return NewInitError("Init", "cannot interpose on "+ip.Symbol(), err)
	}
	r.original = orig
	r.installed = true
	return nil
}
