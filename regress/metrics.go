// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regress

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MSE is the mean squared error.
func MSE(y, pred []float64) float64 {
	d := floats.Distance(y, pred, 2)
	return d * d / float64(len(y))
}

// R2 is the coefficient of determination.
func R2(y, pred []float64) float64 {
	return stat.RSquaredFrom(pred, y, nil)
}

// Accuracy is the share of labels equal to the predicted class.
func Accuracy(y, class []float64) float64 {
	hit := 0
	for i, v := range y {
		if v == class[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(y))
}

// LogLoss is the mean negative log-likelihood of 0/1 labels under probabilities prob.
func LogLoss(y, prob []float64) float64 {
	const eps = 1e-15
	sum := 0.0
	for i, v := range y {
		p := math.Min(math.Max(prob[i], eps), 1-eps)
		sum -= v*math.Log(p) + (1-v)*math.Log(1-p)
	}
	return sum / float64(len(y))
}
