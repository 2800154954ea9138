// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgsb

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// iterDriver runs one fit of an Optimizer on a Workspace. Each iteration
// finds the Cauchy point, minimizes the model over the variables left free
// there, searches along the resulting direction and stores the new
// correction pair.
type iterDriver struct {
	ctx  context.Context
	spec *iterSpec
	it   *iterCtx
	loc  *iterLoc
}

// evaluate computes f and g at loc.x. It returns a stop status instead when
// the context is done, the time budget is spent or the evaluation panics.
func (d *iterDriver) evaluate() (st Status) {
	switch {
	case d.ctx.Err() != nil:
		return Canceled
	case time.Duration(d.it.global.elapsed()) >= d.spec.stop.MaxComputations:
		return OverTimeLimit
	}
	defer func() {
		if recover() != nil {
			st = HaltEvalPanic
		}
	}()
	d.loc.f = d.spec.eval(d.loc.x, d.loc.g)
	d.it.totalEval++
	return iterLoop
}

// converged refreshes the projected gradient norm and returns a convergence
// status when it or the relative decrease of f is small enough, st otherwise.
func (d *iterDriver) converged(st Status) Status {
	it, stop, f := d.it, &d.spec.stop, d.loc.f
	it.sbgNrm = projGradNorm(d.loc, d.spec)
	if it.sbgNrm <= stop.ProjGradTolerance {
		return ConvGradProgNorm
	}
	if it.iter > 0 {
		scale := math.Max(math.Max(math.Abs(it.fOld), math.Abs(f)), 1)
		if it.fOld-f <= d.spec.epsilon*stop.EpsAccuracyFactor*scale {
			return ConvEnoughAccuracy
		}
	}
	return st
}

// finish counts a completed iteration and applies the stopping rules.
func (d *iterDriver) finish() Status {
	it, stop := d.it, &d.spec.stop
	it.iter++
	st := iterLoop
	switch {
	case it.iter > stop.MaxIterations:
		st = OverIterLimit
	case it.totalEval >= stop.MaxEvaluations:
		st = OverEvalLimit
	case it.dNorm <= stop.GradDescentThreshold*(1+math.Abs(d.loc.f)):
		st = OverGradThresh
	}
	return d.converged(st)
}

func (d *iterDriver) run() Status {
	it, spec, loc := d.it, d.spec, d.loc
	log := spec.logger

	it.clear()
	it.global.reset()
	projInitActive(loc, spec, it)

	st := d.evaluate()
	if st == iterLoop {
		st = d.converged(st)
	}
	log.Debug("l-bfgs-b started",
		zap.Int("n", spec.n),
		zap.Int("m", spec.m),
		zap.Bool("constrained", it.constrained),
		zap.Bool("projected", it.projInitX),
		zap.Float64("f", loc.f),
		zap.Float64("proj_grad", it.sbgNrm))

	info := ok
	for st == iterLoop {
		if info != ok {
			log.Debug("dropping corrections",
				zap.Int("iteration", it.iter),
				zap.Stringer("reason", info))
			it.reset()
		}
		if info, st = d.iterate(); info != ok || st != iterLoop {
			continue
		}

		st = d.finish()
		if ce := log.Check(zap.DebugLevel, "l-bfgs-b iteration"); ce != nil {
			ce.Write(
				zap.Int("iteration", it.iter),
				zap.Int("evaluations", it.totalEval),
				zap.Int("active", it.active),
				zap.Int("backtracks", it.numBack),
				zap.Float64("step", it.stp*it.dNorm),
				zap.Float64("proj_grad", it.sbgNrm),
				zap.Float64("f", loc.f))
		}

		switch {
		case st == iterLoop:
			updateCorrection(loc, spec, it)
			info = formT(spec, it)
		case st == ConvEnoughAccuracy && it.numBack >= searchBackSlow:
			info = warnTooManySearch
		}
	}

	fields := []zap.Field{
		zap.Stringer("status", st),
		zap.Int("iterations", it.iter),
		zap.Int("evaluations", it.totalEval),
		zap.Int("segments", it.totalSegGCP),
		zap.Int("skipped_updates", it.totalSkipBFGS),
		zap.Float64("proj_grad", it.sbgNrm),
		zap.Float64("f", loc.f),
		zap.Duration("cauchy", time.Duration(it.gcpSearchTime)),
		zap.Duration("subspace", time.Duration(it.minSubspaceTime)),
		zap.Duration("line_search", time.Duration(it.lineSearchTime)),
	}
	if info != ok {
		fields = append(fields, zap.Stringer("info", info))
	}
	log.Debug("l-bfgs-b finished", fields...)
	return st
}

// iterate moves x from one iterate to the next. A non-ok info asks for the
// corrections to be dropped before retrying.
func (d *iterDriver) iterate() (errInfo, Status) {
	refactor, info := d.searchGCP()
	if info != ok {
		return info, iterLoop
	}
	if info = d.minimizeSubspace(refactor); info != ok {
		return info, iterLoop
	}
	return d.searchOptimalStep()
}

// searchGCP finds the Cauchy point and the free variables there, reporting
// whether K must be formed again. Without bounds and with some corrections
// stored the Cauchy point is x itself.
func (d *iterDriver) searchGCP() (bool, errInfo) {
	it := d.it
	if !it.constrained && it.col > 0 {
		copy(it.z, d.loc.x)
		it.seg = 0
		return it.updated, ok
	}

	it.shared.reset()
	defer func() { it.gcpSearchTime += it.shared.elapsed() }()
	if info := cauchy(d.loc, d.spec, it); info != ok {
		return false, info
	}
	it.totalSegGCP += it.seg
	return freeVar(d.spec, it), ok
}

// minimizeSubspace replaces the Cauchy point by the minimizer of the model
// over the free variables. It is skipped when nothing is free or B = θI.
func (d *iterDriver) minimizeSubspace(refactor bool) errInfo {
	it := d.it
	it.word = solutionUnknown
	if it.free == 0 || it.col == 0 {
		return ok
	}

	it.shared.reset()
	defer func() { it.minSubspaceTime += it.shared.elapsed() }()
	if refactor {
		if info := formK(d.spec, it); info != ok {
			return info
		}
	}
	if info := reduceGradient(d.loc, d.spec, it); info != ok {
		return info
	}
	return optimalDirection(d.loc, d.spec, it)
}

// searchOptimalStep searches along d = x̂ - x for the next iterate. On
// failure x, f and g are restored; the run then continues with the
// corrections dropped, or stops when none were stored.
func (d *iterDriver) searchOptimalStep() (errInfo, Status) {
	it, loc := d.it, d.loc
	for i, x := range loc.x {
		it.d[i] = it.z[i] - x
	}

	it.shared.reset()
	defer func() { it.lineSearchTime += it.shared.elapsed() }()
	initLineSearch(loc, d.spec, it)
	loc.save(it.t, &it.fOld, it.r)

	for {
		info, done := performLineSearch(loc, d.spec, it)
		if done {
			return ok, iterLoop
		}
		if info == ok && it.numBack >= searchBackExit {
			info = errLineSearchFailed
		}
		if info != ok {
			loc.load(it.t, it.fOld, it.r)
			d.spec.logger.Debug("line search failed",
				zap.Int("iteration", it.iter),
				zap.Stringer("reason", info),
				zap.Float64("gd", it.gd))
			if it.col > 0 {
				return warnRestartLoop, iterLoop
			}
			it.iter++
			return info, StopAbnormalSearch
		}

		if st := d.evaluate(); st != iterLoop {
			loc.load(it.t, it.fOld, it.r)
			return ok, st
		}
		it.numEval++
		it.numBack = it.numEval - 1
	}
}
