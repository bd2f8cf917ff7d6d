// Package policy is a deterministic fuzzy-inference layer that maps CDR scores
// to graded action intensities. Rules and membership functions come from the
// artifact bundle; nothing is learned and nothing is remembered between calls.
//
// Firing strength is the antecedent degree for single-clause rules and the
// minimum for conjunctions. Strengths sharing a consequent level combine by
// maximum, and the crisp level is the one with the largest aggregated
// strength, ties going to the less intense level.
package policy

import (
	"fmt"
	"math"
	"strings"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
)

// OverallDimension names the dimension whose level modulates advice.
const OverallDimension = "overall"

// Inputs are crisp values keyed by variable name.
type Inputs map[string]float64

type clause struct {
	variable *variable
	label    int
}

type rule struct {
	id       string
	clauses  []clause
	level    int
	original artifacts.RuleSpec
}

type dimension struct {
	name  string
	rules []rule
}

// Engine is immutable after NewEngine.
type Engine struct {
	spec       artifacts.PolicySpec
	levels     []string
	variables  map[string]*variable
	order      []string
	dimensions []dimension
	status     *variable
	advice     advice
}

// NewEngine compiles and validates a rule base. inputs lists the variable
// names callers will supply; a rule over any other variable is rejected.
func NewEngine(spec artifacts.PolicySpec, inputs []string) (*Engine, error) {
	e := &Engine{
		spec:      spec,
		variables: make(map[string]*variable, len(spec.Variables)),
	}
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	levelIndex := make(map[string]int, len(spec.Levels))
	for i, l := range spec.Levels {
		if _, dup := levelIndex[l]; dup || l == "" {
			fail("level %q is empty or duplicated", l)
		}
		levelIndex[l] = i
	}
	if len(spec.Levels) == 0 {
		fail("no levels defined")
	}
	e.levels = append([]string(nil), spec.Levels...)

	for _, vs := range spec.Variables {
		v, err := compileVariable(vs)
		if err != nil {
			fail("%v", err)
			continue
		}
		if _, dup := e.variables[v.name]; dup {
			fail("variable %q defined twice", v.name)
			continue
		}
		e.variables[v.name] = v
		e.order = append(e.order, v.name)
	}

	supplied := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		supplied[in] = true
	}

	ruleIDs := make(map[string]bool)
	dimNames := make(map[string]bool)
	for _, ds := range spec.Dimensions {
		if ds.Name == "" || dimNames[ds.Name] {
			fail("dimension %q is empty or duplicated", ds.Name)
		}
		dimNames[ds.Name] = true
		if len(ds.Rules) == 0 {
			fail("dimension %q has no rules", ds.Name)
		}

		dim := dimension{name: ds.Name}
		for _, rs := range ds.Rules {
			if rs.ID == "" || ruleIDs[rs.ID] {
				fail("rule id %q is empty or duplicated", rs.ID)
			}
			ruleIDs[rs.ID] = true

			lvl, ok := levelIndex[rs.Then]
			if !ok {
				fail("rule %q concludes unknown level %q", rs.ID, rs.Then)
			}
			if len(rs.If) == 0 {
				fail("rule %q has no antecedent", rs.ID)
			}

			r := rule{id: rs.ID, level: lvl, original: rs}
			for _, c := range rs.If {
				v, ok := e.variables[c.Var]
				if !ok {
					fail("rule %q uses unknown variable %q", rs.ID, c.Var)
					continue
				}
				if !supplied[c.Var] {
					fail("rule %q uses variable %q which no input supplies", rs.ID, c.Var)
				}
				idx := v.labelIndex(c.Is)
				if idx < 0 {
					fail("rule %q uses unknown label %q of %q", rs.ID, c.Is, c.Var)
					continue
				}
				r.clauses = append(r.clauses, clause{variable: v, label: idx})
			}
			dim.rules = append(dim.rules, r)
		}
		e.dimensions = append(e.dimensions, dim)
	}

	if spec.Status.Variable != "" {
		v, ok := e.variables[spec.Status.Variable]
		if !ok {
			fail("status variable %q is not defined", spec.Status.Variable)
		}
		e.status = v
	}

	adv, advProblems := compileAdvice(spec.Advice, levelIndex, dimNames)
	problems = append(problems, advProblems...)
	e.advice = adv

	if len(problems) > 0 {
		return nil, apperrors.NewConfigurationError("invalid rule base: "+strings.Join(problems, "; "), nil)
	}
	return e, nil
}

func compileVariable(vs artifacts.VariableSpec) (*variable, error) {
	if vs.Name == "" {
		return nil, fmt.Errorf("variable with empty name")
	}
	if len(vs.Universe) != 2 || !(vs.Universe[0] < vs.Universe[1]) {
		return nil, fmt.Errorf("variable %q needs a universe [min, max] with min < max", vs.Name)
	}
	if len(vs.Labels) == 0 {
		return nil, fmt.Errorf("variable %q has no labels", vs.Name)
	}

	v := &variable{name: vs.Name, min: vs.Universe[0], max: vs.Universe[1]}
	seen := make(map[string]bool)
	for _, ls := range vs.Labels {
		if ls.Name == "" || seen[ls.Name] {
			return nil, fmt.Errorf("variable %q label %q is empty or duplicated", vs.Name, ls.Name)
		}
		seen[ls.Name] = true

		p := ls.Points
		if len(p) != 4 {
			return nil, fmt.Errorf("label %s.%s needs 4 breakpoints, has %d", vs.Name, ls.Name, len(p))
		}
		for _, x := range p {
			if math.IsNaN(x) || x < v.min || x > v.max {
				return nil, fmt.Errorf("label %s.%s breakpoint %v is outside the universe", vs.Name, ls.Name, x)
			}
		}
		if !(p[0] <= p[1] && p[1] <= p[2] && p[2] <= p[3]) {
			return nil, fmt.Errorf("label %s.%s breakpoints %v are not ordered", vs.Name, ls.Name, p)
		}
		v.labels = append(v.labels, label{name: ls.Name, shape: trapezoid{p[0], p[1], p[2], p[3]}})
	}
	return v, nil
}

// Levels returns the ordered output levels, least intense first.
func (e *Engine) Levels() []string {
	return append([]string(nil), e.levels...)
}

// Spec returns the rule base the engine was compiled from.
func (e *Engine) Spec() artifacts.PolicySpec {
	return e.spec
}

// Fuzzify maps one input to its label degrees. NaN and ±Inf are domain errors;
// finite values are clamped to the variable's universe.
func (e *Engine) Fuzzify(name string, x float64) (map[string]float64, error) {
	v, ok := e.variables[name]
	if !ok {
		return nil, apperrors.NewDomainError(name, x)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, apperrors.NewDomainError(name, x)
	}
	degrees := v.fuzzify(x)
	out := make(map[string]float64, len(degrees))
	for i, l := range v.labels {
		out[l.name] = degrees[i]
	}
	return out, nil
}

// Evaluate runs every dimension over the inputs.
func (e *Engine) Evaluate(in Inputs) (Evaluation, error) {
	memberships := make(map[string][]float64)
	ev := Evaluation{Memberships: make(map[string]map[string]float64)}

	for _, name := range e.order {
		x, ok := in[name]
		if !ok {
			continue
		}
		m, err := e.Fuzzify(name, x)
		if err != nil {
			return Evaluation{}, err
		}
		ev.Memberships[name] = m
		memberships[name] = e.variables[name].fuzzify(x)
	}

	for _, dim := range e.dimensions {
		agg := make([]float64, len(e.levels))
		firings := make([]RuleFiring, 0, len(dim.rules))

		for _, r := range dim.rules {
			strength := 1.0
			for _, c := range r.clauses {
				degrees, ok := memberships[c.variable.name]
				if !ok {
					return Evaluation{}, apperrors.NewDomainError(c.variable.name, math.NaN())
				}
				strength = math.Min(strength, degrees[c.label])
			}
			agg[r.level] = math.Max(agg[r.level], strength)
			firings = append(firings, RuleFiring{
				ID:       r.id,
				Then:     e.levels[r.level],
				Strength: strength,
			})
		}

		strengths := make([]LevelStrength, len(e.levels))
		for i, l := range e.levels {
			strengths[i] = LevelStrength{Level: l, Strength: agg[i]}
		}
		ev.Dimensions = append(ev.Dimensions, DimensionResult{
			Dimension: dim.name,
			Level:     e.levels[argmax(agg)],
			Strengths: strengths,
			Firings:   firings,
		})
	}
	return ev, nil
}

// Status labels a signed deviation with the status variable's best label,
// ties going to the label listed first.
func (e *Engine) Status(deviation float64) (string, map[string]float64, error) {
	if e.status == nil {
		return "", nil, nil
	}
	m, err := e.Fuzzify(e.status.name, deviation)
	if err != nil {
		return "", nil, err
	}
	return e.status.labels[argmax(e.status.fuzzify(deviation))].name, m, nil
}

func (e *Engine) levelIndex(level string) int {
	for i, l := range e.levels {
		if l == level {
			return i
		}
	}
	return -1
}
