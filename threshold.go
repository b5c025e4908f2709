package mpsgemm

import (
	"fmt"
	"math"
)

// ThresholdConfig is the advisory precision-loss policy: the global
// lost-ratio threshold a caller may compare measurements against, and
// the scale parameter the safe-exponent-range classification is derived
// from. The engine reports against this configuration; it never
// enforces it.
type ThresholdConfig struct {
	LossRatioThreshold float64
	ScaleParam         float64
}

// expRange is one mode's safe window of unbiased float32 exponents. An
// operand element whose exponent falls outside the window is at risk of
// significant precision loss under that mode.
type expRange struct {
	lo int32
	hi int32
}

// statsParams is an immutable snapshot of the threshold configuration
// together with the per-mode range table derived from it. Replaced
// wholesale on SetExpStatsParams so readers never see a half-updated
// pair.
type statsParams struct {
	cfg    ThresholdConfig
	ranges [numComputeModes]expRange
}

// unbounded is a window no float32 exponent escapes, used for the
// passthrough mode.
var unbounded = expRange{lo: math.MinInt32 / 2, hi: math.MaxInt32 / 2}

// buildStatsParams derives the safe-range table. Scaling the operands by
// scaleParam shifts the underflow boundary up by ceil(log2(scaleParam))
// exponent steps; error-corrected modes extend the boundary downward by
// the mantissa width the correction recovers.
func buildStatsParams(cfg ThresholdConfig) *statsParams {
	shift := int32(math.Ceil(math.Log2(cfg.ScaleParam)))
	p := &statsParams{cfg: cfg}
	p.ranges[ModeCublas] = unbounded
	p.ranges[ModeFP16TC] = expRange{lo: fp16ExpMin + shift, hi: fp16ExpMax}
	p.ranges[ModeFP16TCEC] = expRange{lo: fp16ExpMin - fp16ECBits + shift, hi: fp16ExpMax}
	p.ranges[ModeTF32TC] = expRange{lo: tf32ExpMin + shift, hi: tf32ExpMax}
	p.ranges[ModeTF32TCEC] = expRange{lo: tf32ExpMin - tf32ECBits + shift, hi: tf32ExpMax}
	return p
}

// SetExpStatsParams validates and atomically replaces the threshold
// configuration. lossRatioThreshold must lie in [0,1] and scaleParam
// must be positive; a rejected call leaves the prior configuration
// untouched. The configuration persists across stats enable/disable
// cycles.
func (r *Runtime) SetExpStatsParams(lossRatioThreshold, scaleParam float64) error {
	if math.IsNaN(lossRatioThreshold) || lossRatioThreshold < 0 || lossRatioThreshold > 1 {
		return NewConfigError("SetExpStatsParams",
			fmt.Sprintf("loss ratio threshold %v outside [0,1]", lossRatioThreshold))
	}
	if math.IsNaN(scaleParam) || math.IsInf(scaleParam, 0) || scaleParam <= 0 {
		return NewConfigError("SetExpStatsParams",
			fmt.Sprintf("scale parameter %v must be a positive finite value", scaleParam))
	}
	r.params.Store(buildStatsParams(ThresholdConfig{
		LossRatioThreshold: lossRatioThreshold,
		ScaleParam:         scaleParam,
	}))
	return nil
}

// GetGlobalLostRatioThreshold returns the current advisory lost-ratio
// threshold.
func (r *Runtime) GetGlobalLostRatioThreshold() float64 {
	return r.params.Load().cfg.LossRatioThreshold
}

// GetExpStatsParams returns the current threshold configuration.
func (r *Runtime) GetExpStatsParams() ThresholdConfig {
	return r.params.Load().cfg
}
