// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

// The Hessian approximation B = LDLᵀ is stored packed by columns: column j
// starts at packed(n, j) with dⱼ followed by Lⱼ₊₁,ⱼ … Lₙ₋₁,ⱼ.
func packed(n, j int) int {
	return j*n - j*(j-1)/2
}

// ldlRankOne overwrites the packed factors of B with those of B + σzzᵀ using
// the composite t-method of Fletcher and Powell, which keeps D positive when
// the update is. z is destroyed. A negative σ needs n scratch values in w.
func ldlRankOne(n int, l, z []float64, sigma float64, w []float64) {
	if sigma == 0 {
		return
	}
	t := 1 / sigma
	if sigma < 0 {
		// w = L⁻¹z while t accumulates 1/σ + Σ wᵢ²/dᵢ
		copy(w[:n], z[:n])
		for i := 0; i < n; i++ {
			k := packed(n, i)
			v := w[i]
			t += v * v / l[k]
			daxpy(n-i-1, -v, l[k+1:], 1, w[i+1:], 1)
		}
		if t >= 0 {
			t = eps / sigma
		}
		// replace wᵢ by the partial sum tᵢ₊₁ running backwards
		for i := n - 1; i >= 0; i-- {
			v := w[i]
			w[i] = t
			t -= v * v / l[packed(n, i)]
		}
	}

	for i := 0; i < n; i++ {
		k := packed(n, i)
		v := z[i]
		delta := v / l[k]
		next := t + delta*v
		if sigma < 0 {
			next = w[i]
		}
		alpha := next / t
		l[k] *= alpha
		if i == n-1 {
			break
		}
		beta := delta / next
		col, rest := l[k+1:k+n-i], z[i+1:n]
		if alpha > 4 {
			gamma := t / next
			for j, u := range col {
				col[j] = gamma*u + beta*rest[j]
				rest[j] -= v * u
			}
		} else {
			daxpy(len(col), -v, col, 1, rest, 1)
			daxpy(len(col), beta, rest, 1, col, 1)
		}
		t = next
	}
}

// ldlMul overwrites v with LDLᵀs for the packed factors in l.
func ldlMul(n int, l, s, v []float64) {
	for i := 0; i < n; i++ {
		k := packed(n, i)
		v[i] = l[k] * (s[i] + ddot(n-i-1, l[k+1:], 1, s[i+1:], 1))
	}
	for i := n - 1; i > 0; i-- {
		for j := 0; j < i; j++ {
			v[i] += l[packed(n, j)+i-j] * v[j]
		}
	}
}

// ldlIdentity resets the packed factors to L = I and D = I.
func ldlIdentity(n int, l []float64) {
	clear(l[:packed(n, n)])
	for j := 0; j < n; j++ {
		l[packed(n, j)] = 1
	}
}
