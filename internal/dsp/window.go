package dsp

import "math"

// Kaiser design constants (Kaiser & Schafer).
const (
	kaiserAttHigh   = 50.0
	kaiserAttMedium = 21.0

	besselSmallArg = 3.75
)

// BesselI0 computes the modified Bessel function of the first kind, order zero.
// Polynomial approximations from Abramowitz & Stegun.
func BesselI0(x float64) float64 {
	ax := math.Abs(x)
	if ax < besselSmallArg {
		t := x / besselSmallArg
		t *= t
		return 1.0 + t*(3.5156229+t*(3.0899424+t*(1.2067492+
			t*(0.2659732+t*(0.0360768+t*0.0045813)))))
	}
	t := besselSmallArg / ax
	r := 0.39894228 + t*(0.01328592+t*(0.00225319+t*(-0.00157565+
		t*(0.00916281+t*(-0.02057706+t*(0.02635537+t*(-0.01647633+t*0.00392377)))))))
	return math.Exp(ax) * r / math.Sqrt(ax)
}

// KaiserBeta computes the Kaiser β for a stopband attenuation in dB.
func KaiserBeta(attenuation float64) float64 {
	switch {
	case attenuation > kaiserAttHigh:
		return 0.1102 * (attenuation - 8.7)
	case attenuation >= kaiserAttMedium:
		d := attenuation - kaiserAttMedium
		return 0.5842*math.Pow(d, 0.4) + 0.07886*d
	}
	return 0
}

// KaiserWindow generates a symmetric Kaiser window of the given length.
func KaiserWindow(length int, beta float64) []float64 {
	if length < 1 {
		return nil
	}
	w := make([]float64, length)
	if length == 1 {
		w[0] = 1
		return w
	}
	alpha := float64(length-1) / 2
	i0 := BesselI0(beta)
	for n := range w {
		x := (float64(n) - alpha) / alpha
		w[n] = BesselI0(beta*math.Sqrt(1-x*x)) / i0
	}
	return w
}

// sinc is the normalized sinc function sin(πx)/(πx).
func sinc(x float64) float64 {
	if math.Abs(x) < 1e-12 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}
