package geom

func IsInTriangle(p, a, b, c *Vector3) bool {
	ab, bc, ca := b.Sub(a), c.Sub(b), a.Sub(c)
	c1, c2, c3 := ab.Cross(p.Sub(a)), bc.Cross(p.Sub(b)), ca.Cross(p.Sub(c))
	return c1.Dot(c2) > 0 && c2.Dot(c3) > 0 && c3.Dot(c1) > 0
}

// PolygonNormal returns the Newell normal of poly, not normalized.
// Its length is twice the polygon area.
func PolygonNormal(poly []*Vector3) *Vector3 {
	n := &Vector3{}
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	return n
}

// Triangulate splits a simple polygon into triangles by ear clipping.
// Returned triangles index into poly and keep its winding.
// Self-intersecting input falls back to a fan.
func Triangulate(poly []*Vector3) [][3]int {
	var dst [][3]int
	if len(poly) < 3 {
		return dst
	}
	if len(poly) == 3 {
		return append(dst, [3]int{0, 1, 2})
	}
	n := PolygonNormal(poly).Normalize()
	ii := make([]int, len(poly))
	for i := range poly {
		ii[i] = i
	}

	// O(N*N)...
	count := len(ii)
	for count >= 3 {
		lastCount := count
		for i := count - 1; i >= 0 && count >= 3; i-- {
			i0 := ii[(i+count-1)%count]
			i1 := ii[i]
			i2 := ii[(i+1)%count]
			v0, v1, v2 := poly[i0], poly[i1], poly[i2]
			if v2.Sub(v1).Cross(v0.Sub(v1)).Dot(n) < 0 {
				continue
			}
			ok := true
			for _, j := range ii {
				if j != i0 && j != i1 && j != i2 && IsInTriangle(poly[j], v0, v1, v2) {
					ok = false
					break
				}
			}
			if ok {
				dst = append(dst, [3]int{i0, i1, i2})
				ii = append(ii[:i:i], ii[i+1:]...)
				count--
				if i >= count {
					i = count
				}
			}
		}
		if lastCount == count {
			// maybe self-intersecting polygon
			for i := 0; i < len(ii)-2; i++ {
				dst = append(dst, [3]int{ii[0], ii[i+1], ii[i+2]})
			}
			break
		}
	}
	return dst
}
