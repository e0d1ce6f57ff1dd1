package risk

// VaR estimates the one-day value at risk of exposure with a normal
// approximation. Confidence 0.99 uses z=2.326; anything else z=1.645.
func VaR(exposure, dailyVolatility, confidence float64) float64 {
	z := 1.645
	if confidence >= 0.99 {
		z = 2.326
	}
	return exposure * dailyVolatility * z
}
