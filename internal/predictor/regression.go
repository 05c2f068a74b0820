package predictor

// linearFit is an ordinary least-squares line fit over (x, y) points.
type linearFit struct {
	Slope     float64
	Intercept float64
	R2        float64
}

// fitLine computes the least-squares line through the points and its R².
// With fewer than two points, or zero variance in x, the fit degenerates to a
// flat line through the mean.
func fitLine(xs, ys []float64) linearFit {
	n := float64(len(xs))
	if n == 0 {
		return linearFit{}
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / n
	meanY := sumY / n

	var ssXX, ssXY, ssYY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		ssXX += dx * dx
		ssXY += dx * dy
		ssYY += dy * dy
	}

	if ssXX == 0 {
		return linearFit{Intercept: meanY}
	}

	slope := ssXY / ssXX
	fit := linearFit{
		Slope:     slope,
		Intercept: meanY - slope*meanX,
	}
	if ssYY > 0 {
		fit.R2 = (ssXY * ssXY) / (ssXX * ssYY)
	}
	return fit
}

// predictAt evaluates the fitted line at x.
func (f linearFit) predictAt(x float64) float64 {
	return f.Slope*x + f.Intercept
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
