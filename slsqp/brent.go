// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import "math"

var sqrtEps = math.Sqrt(eps)

// goldenStep is the golden section fraction (3 - √5)/2.
const goldenStep = 1 / (math.Phi * math.Phi)

// brent minimizes a function of one variable on a bracket without
// derivatives, mixing golden section steps with parabolic interpolation.
// It runs by reverse communication: start returns the first abscissa and
// every call to next takes the function value there and returns the
// following one. Once done is set the returned abscissa is the minimizer.
type brent struct {
	a, b       float64 // bracket
	x, w, v    float64 // best, second best and previous second best points
	fx, fw, fv float64
	u          float64 // last trial
	d, e       float64 // last step and the one before
	primed     bool
	done       bool
}

func (s *brent) start(lo, hi float64) float64 {
	*s = brent{a: lo, b: hi}
	s.x = lo + goldenStep*(hi-lo)
	s.w, s.v, s.u = s.x, s.x, s.x
	return s.x
}

func (s *brent) next(f, tol float64) float64 {
	if s.primed {
		s.record(f)
	} else {
		s.fx, s.fw, s.fv = f, f, f
		s.primed = true
	}

	mid := (s.a + s.b) / 2
	tol1 := sqrtEps*math.Abs(s.x) + tol
	tol2 := 2 * tol1
	if math.Abs(s.x-mid) <= tol2-(s.b-s.a)/2 {
		s.done = true
		return s.x
	}

	var p, q, r float64
	if math.Abs(s.e) > tol1 {
		r = (s.x - s.w) * (s.fx - s.fv)
		q = (s.x - s.v) * (s.fx - s.fw)
		p = (s.x-s.v)*q - (s.x-s.w)*r
		q = 2 * (q - r)
		if q > 0 {
			p = -p
		} else {
			q = -q
		}
		r, s.e = s.e, s.d
	}

	if math.Abs(p) >= math.Abs(q*r)/2 || p <= q*(s.a-s.x) || p >= q*(s.b-s.x) {
		if s.x >= mid {
			s.e = s.a - s.x
		} else {
			s.e = s.b - s.x
		}
		s.d = goldenStep * s.e
	} else {
		s.d = p / q
		// keep away from the bracket ends
		if u := s.x + s.d; u-s.a < tol2 || s.b-u < tol2 {
			s.d = math.Copysign(tol1, mid-s.x)
		}
	}
	if math.Abs(s.d) < tol1 {
		s.d = math.Copysign(tol1, s.d)
	}
	s.u = s.x + s.d
	return s.u
}

// record narrows the bracket with the value fu at the last trial.
func (s *brent) record(fu float64) {
	u := s.u
	if fu <= s.fx {
		if u >= s.x {
			s.a = s.x
		} else {
			s.b = s.x
		}
		s.v, s.fv = s.w, s.fw
		s.w, s.fw = s.x, s.fx
		s.x, s.fx = u, fu
		return
	}
	if u < s.x {
		s.a = u
	} else {
		s.b = u
	}
	switch {
	case fu <= s.fw || s.w == s.x:
		s.v, s.fv = s.w, s.fw
		s.w, s.fw = u, fu
	case fu <= s.fv || s.v == s.x || s.v == s.w:
		s.v, s.fv = u, fu
	}
}
