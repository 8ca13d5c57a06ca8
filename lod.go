package strata

// LodPolicy is pure decision logic mapping camera distance to detail tiers.
// It holds no mutable state and is safe to copy.
type LodPolicy struct {
	// Thresholds is the ordered distance list T[0] < T[1] < ...
	Thresholds []float32
	// Margin is the hysteresis offset applied against the current LOD.
	Margin float32
}

// Coarsest is the LOD assigned beyond the last threshold.
func (p LodPolicy) Coarsest() Lod {
	return Lod(len(p.Thresholds))
}

// TargetLod returns the first tier i with distance <= T[i], or the coarsest
// tier when the distance clears every threshold.
func (p LodPolicy) TargetLod(distance float32) Lod {
	for i, t := range p.Thresholds {
		if distance <= t {
			return Lod(i)
		}
	}
	return p.Coarsest()
}

// ShouldTransition recomputes a target LOD with each threshold offset in the
// direction that resists leaving the current tier: moving finer must clear
// T[i]-margin, moving coarser must clear T[i]+margin. A distance hovering
// within the margin of a boundary therefore never oscillates.
func (p LodPolicy) ShouldTransition(current Lod, distance float32) bool {
	return p.biasedTarget(current, distance) != current
}

func (p LodPolicy) biasedTarget(current Lod, distance float32) Lod {
	for i, t := range p.Thresholds {
		eff := t - p.Margin
		if Lod(i) >= current {
			eff = t + p.Margin
		}
		if distance <= eff {
			return Lod(i)
		}
	}
	return p.Coarsest()
}

// ReadyForBetterLod reports the next finer LOD whose generation should begin
// now. Generation starts once the distance is within Margin above the finer
// band's threshold, before the switch itself is warranted, so the finer
// instance is likely resident by the time ShouldTransition fires.
func (p LodPolicy) ReadyForBetterLod(current Lod, distance float32) (Lod, bool) {
	if current <= 0 || len(p.Thresholds) == 0 {
		return 0, false
	}
	if current > p.Coarsest() {
		current = p.Coarsest()
	}
	finer := current - 1
	if distance <= p.Thresholds[finer]+p.Margin {
		return finer, true
	}
	return 0, false
}
