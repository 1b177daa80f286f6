package runner

// RatePlan holds the target rate for each whole second of a phase.
type RatePlan []int

// ConstantPlan runs at rps for every one of seconds.
func ConstantPlan(seconds, rps int) RatePlan {
	if seconds <= 0 || rps <= 0 {
		return nil
	}
	plan := make(RatePlan, seconds)
	for i := range plan {
		plan[i] = rps
	}
	return plan
}

// RampPlan ramps linearly to rps over seconds: second i (0-indexed) runs at
// ceil((i+1)*rps/seconds), so the last second always reaches rps.
func RampPlan(seconds, rps int) RatePlan {
	if seconds <= 0 || rps <= 0 {
		return nil
	}
	plan := make(RatePlan, seconds)
	for i := range plan {
		plan[i] = ((i+1)*rps + seconds - 1) / seconds
	}
	return plan
}

// Total returns the number of units the plan admits.
func (p RatePlan) Total() int64 {
	var total int64
	for _, r := range p {
		total += int64(r)
	}
	return total
}
