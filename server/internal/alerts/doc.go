// Package alerts implements the threshold evaluator. Evaluate is a pure
// function from a sample to the ordered alert drafts it raises:
//
//	pulse < 50   -> pulse_low  (high)
//	pulse > 120  -> pulse_high (high)
//	spo2 < 90    -> spo2_low   (critical)
//	any of those -> emergency  (critical), appended last
//
// pulse_low and pulse_high are mutually exclusive; spo2_low may accompany
// either. Thresholds are strict: 50, 120 and 90 are normal.
package alerts
