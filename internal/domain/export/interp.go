package export

// InterpolateRect derives the crop rectangle at t using the documented rule:
// Catmull-Rom spline across >=4 keyframes, linear otherwise, clamped at the
// endpoints. Keyframes must be sorted by SourceTimeSec.
func InterpolateRect(keyframes []CropKeyframe, t float64) Rect {
	n := len(keyframes)
	if n == 0 {
		return Rect{}
	}
	if n == 1 || t <= keyframes[0].SourceTimeSec {
		return keyframes[0].Rect
	}
	if t >= keyframes[n-1].SourceTimeSec {
		return keyframes[n-1].Rect
	}

	i := 0
	for i < n-2 && keyframes[i+1].SourceTimeSec <= t {
		i++
	}
	k0, k1 := keyframes[i], keyframes[i+1]
	span := k1.SourceTimeSec - k0.SourceTimeSec
	if span <= 0 {
		return k0.Rect
	}
	local := (t - k0.SourceTimeSec) / span

	if n < 4 {
		return lerpRect(k0.Rect, k1.Rect, local)
	}

	p0 := keyframes[clampIndex(i-1, n)].Rect
	p1 := k0.Rect
	p2 := k1.Rect
	p3 := keyframes[clampIndex(i+2, n)].Rect
	return catmullRomRect(p0, p1, p2, p3, local)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func lerpRect(a, b Rect, t float64) Rect {
	return Rect{
		X: lerp(a.X, b.X, t),
		Y: lerp(a.Y, b.Y, t),
		W: lerp(a.W, b.W, t),
		H: lerp(a.H, b.H, t),
	}
}

func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

func catmullRomRect(p0, p1, p2, p3 Rect, t float64) Rect {
	return Rect{
		X: catmullRom(p0.X, p1.X, p2.X, p3.X, t),
		Y: catmullRom(p0.Y, p1.Y, p2.Y, p3.Y, t),
		W: catmullRom(p0.W, p1.W, p2.W, p3.W, t),
		H: catmullRom(p0.H, p1.H, p2.H, p3.H, t),
	}
}
