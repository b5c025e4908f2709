package mpsgemm

// ComputeMode selects which precision strategy services hijacked SGEMM
// calls. Exactly one mode is active at any instant; each call snapshots
// the mode at entry, so a concurrent change does not affect calls
// already in flight.
type ComputeMode int32

const (
	// ModeCublas forwards calls to the original vendor implementation
	// at full precision. This is the mode before any SetComputeMode.
	ModeCublas ComputeMode = iota
	// ModeFP16TC computes on FP16 tensor cores without error correction.
	ModeFP16TC
	// ModeFP16TCEC computes on FP16 tensor cores with error correction.
	ModeFP16TCEC
	// ModeTF32TC computes on TF32 tensor cores without error correction.
	ModeTF32TC
	// ModeTF32TCEC computes on TF32 tensor cores with error correction.
	ModeTF32TCEC

	numComputeModes
)

// String returns the mode's conventional name.
func (m ComputeMode) String() string {
	switch m {
	case ModeCublas:
		return "CUBLAS"
	case ModeFP16TC:
		return "FP16TC"
	case ModeFP16TCEC:
		return "FP16TCEC"
	case ModeTF32TC:
		return "TF32TC"
	case ModeTF32TCEC:
		return "TF32TCEC"
	default:
		return "INVALID"
	}
}

func (m ComputeMode) valid() bool {
	return m >= ModeCublas && m < numComputeModes
}

// SetComputeMode installs the process-wide compute mode. It affects only
// calls issued after it returns; concurrent setters resolve by
// last-writer-wins. An unrecognized mode is rejected with an InvalidMode
// error and the previous mode is kept.
func (r *Runtime) SetComputeMode(mode ComputeMode) error {
	if !mode.valid() {
		return NewInvalidModeError("SetComputeMode", "unrecognized compute mode "+mode.String())
	}
	r.mode.Store(int32(mode))
	return nil
}

// GetComputeMode returns the current compute mode.
func (r *Runtime) GetComputeMode() ComputeMode {
	return ComputeMode(r.mode.Load())
}

// UnsetComputeMode restores the default passthrough mode.
func (r *Runtime) UnsetComputeMode() {
	r.mode.Store(int32(ModeCublas))
}
