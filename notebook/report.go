// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notebook

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/curioloop/statopt/lp"
	"github.com/curioloop/statopt/regress"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func num(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

// WriteResult prints the status, objective and variable values of r,
// followed by the slack of every row of p.
func WriteResult(w io.Writer, p *lp.Problem, r *lp.Result) error {
	fmt.Fprintf(w, "status: %s\n", r.Status)
	if r.X == nil {
		return nil
	}
	fmt.Fprintf(w, "objective: %s (%d nodes)\n", num(r.F), r.Nodes)
	tw := table(w)
	fmt.Fprintln(tw, "variable\tvalue\t")
	for j, name := range r.Names {
		fmt.Fprintf(tw, "%s\t%s\t\n", name, num(r.X[j]))
	}
	if len(p.Cons) > 0 {
		fmt.Fprintln(tw, "\t\t")
		fmt.Fprintln(tw, "constraint\tslack\t")
		for i, s := range r.Slack(p) {
			fmt.Fprintf(tw, "%s\t%s\t\n", p.Cons[i].Name, num(s))
		}
	}
	return tw.Flush()
}

// WritePlan prints the flow matrix of a transportation plan.
func WritePlan(w io.Writer, plan *lp.Plan) error {
	fmt.Fprintf(w, "cost: %s\n", num(plan.Cost))
	tw := table(w)
	fmt.Fprintf(tw, "\t%s\t\n", strings.Join(plan.Sinks, "\t"))
	for i, row := range plan.Flow {
		cells := make([]string, len(row))
		for j, f := range row {
			cells[j] = num(f)
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", plan.Sources[i], strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeHeader(w io.Writer, m *regress.Model) {
	fmt.Fprintf(w, "model: %s", m.Kind)
	switch {
	case m.Kind == regress.KindSparse:
		fmt.Fprintf(w, " k=%d", int(m.Lambda))
	case m.Kind.Penalized():
		fmt.Fprintf(w, " λ=%s", num(m.Lambda))
	}
	fmt.Fprintf(w, "  objective: %s  iterations: %d\n", num(m.Objective), m.Iterations)
}

// WriteModel prints the intercept and coefficients of m by feature name.
func WriteModel(w io.Writer, features []string, m *regress.Model) error {
	writeHeader(w, m)
	tw := table(w)
	fmt.Fprintln(tw, "term\tcoef\t")
	fmt.Fprintf(tw, "(intercept)\t%s\t\n", num(m.Intercept))
	for j, b := range m.Coef {
		fmt.Fprintf(tw, "%s\t%s\t\n", features[j], num(b))
	}
	return tw.Flush()
}

// WriteClassifier prints a logistic model with the Wald standard error and
// z statistic of every term, or "-" when the information matrix is singular.
func WriteClassifier(w io.Writer, features []string, c *regress.Classifier) error {
	writeHeader(w, &c.Model)
	tw := table(w)
	fmt.Fprintln(tw, "term\tcoef\tstderr\tz\t")
	row := func(name string, b, se float64, ok bool) {
		if !ok {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t\n", name, num(b))
			return
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", name, num(b), num(se), num(b/se))
	}
	ok := c.StdErr != nil
	row("(intercept)", c.Intercept, c.InterceptStdErr, ok && c.InterceptStdErr > 0)
	for j, b := range c.Coef {
		se := 0.0
		if ok {
			se = c.StdErr[j]
		}
		row(features[j], b, se, ok)
	}
	return tw.Flush()
}

// WritePath prints one column of coefficients per model of a regularization path.
func WritePath(w io.Writer, features []string, models []*regress.Model) error {
	tw := table(w)
	head := make([]string, len(models))
	for i, m := range models {
		head[i] = "λ=" + num(m.Lambda)
	}
	fmt.Fprintf(tw, "term\t%s\t\n", strings.Join(head, "\t"))
	row := func(name string, value func(*regress.Model) float64) {
		cells := make([]string, len(models))
		for i, m := range models {
			cells[i] = num(value(m))
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", name, strings.Join(cells, "\t"))
	}
	row("(intercept)", func(m *regress.Model) float64 { return m.Intercept })
	for j, name := range features {
		row(name, func(m *regress.Model) float64 { return m.Coef[j] })
	}
	return tw.Flush()
}

// WriteCV prints the validation loss of every λ and marks the best one.
func WriteCV(w io.Writer, cv *regress.CVResult) error {
	tw := table(w)
	fmt.Fprintln(tw, "λ\tloss\tstderr\t\t")
	for i, l := range cv.Lambdas {
		mark := ""
		if i == cv.Best {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", num(l), num(cv.Loss[i]), num(cv.StdErr[i]), mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "best λ: %s\n", num(cv.BestLambda()))
	return err
}
