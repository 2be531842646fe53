package execution

// validateSignal enforces the geometric sanity of a signal before it enters
// the pipeline: a long's stop sits below entry and target above, mirrored for
// shorts.
func validateSignal(sig *Signal) error {
	if sig.UserID == "" {
		return newError(CodeValidation, "user id is required")
	}
	if sig.Instrument == "" {
		return newError(CodeValidation, "instrument is required")
	}
	if sig.Direction != DirectionLong && sig.Direction != DirectionShort {
		return newError(CodeValidation, "direction must be LONG or SHORT, got %q", sig.Direction)
	}
	if sig.EntryType != EntryMarket && sig.EntryType != EntryLimit {
		return newError(CodeValidation, "entry type must be MARKET or LIMIT, got %q", sig.EntryType)
	}
	if !sig.EntryPrice.IsPositive() {
		return newError(CodeValidation, "entry price must be positive")
	}
	if sig.Quantity < 0 {
		return newError(CodeValidation, "quantity cannot be negative")
	}

	if !sig.StopPrice.IsZero() {
		if sig.Direction == DirectionLong && !sig.StopPrice.LessThan(sig.EntryPrice) {
			return newError(CodeValidation, "long stop %s must be below entry %s", sig.StopPrice, sig.EntryPrice)
		}
		if sig.Direction == DirectionShort && !sig.StopPrice.GreaterThan(sig.EntryPrice) {
			return newError(CodeValidation, "short stop %s must be above entry %s", sig.StopPrice, sig.EntryPrice)
		}
	}
	if !sig.TargetPrice.IsZero() {
		if sig.Direction == DirectionLong && !sig.TargetPrice.GreaterThan(sig.EntryPrice) {
			return newError(CodeValidation, "long target %s must be above entry %s", sig.TargetPrice, sig.EntryPrice)
		}
		if sig.Direction == DirectionShort && !sig.TargetPrice.LessThan(sig.EntryPrice) {
			return newError(CodeValidation, "short target %s must be below entry %s", sig.TargetPrice, sig.EntryPrice)
		}
	}
	return nil
}

// enrichSignal fills in the derived fields: risk distance and R:R.
func enrichSignal(sig *Signal) {
	if sig.StopPrice.IsZero() {
		return
	}
	sig.RiskDistance = sig.EntryPrice.Sub(sig.StopPrice).Abs()
	if !sig.TargetPrice.IsZero() && !sig.RiskDistance.IsZero() {
		reward := sig.TargetPrice.Sub(sig.EntryPrice).Abs()
		sig.RiskReward, _ = reward.Div(sig.RiskDistance).Float64()
	}
}
