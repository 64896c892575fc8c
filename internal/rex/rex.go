// Package rex generalises a finite sample of strings into a short
// ordered list of anchored regular expressions covering every sample.
// Patterns are built from bounded character-class runs and literal
// punctuation, so they are free of backreferences and match in linear
// time under Go's regexp engine.
package rex

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Options tune the generalisation behaviour.
type Options struct {
	// MaxAlternation caps the number of branches a merged literal
	// alternation may carry; 0 selects DefaultMaxAlternation.
	MaxAlternation int
	// LengthSlack is how far outside the observed total-length range a
	// merged pattern may reach; 0 selects DefaultLengthSlack.
	LengthSlack int
}

const (
	DefaultMaxAlternation = 8
	DefaultLengthSlack    = 2
)

func (o Options) withDefaults() Options {
	if o.MaxAlternation <= 0 {
		o.MaxAlternation = DefaultMaxAlternation
	}
	if o.LengthSlack <= 0 {
		o.LengthSlack = DefaultLengthSlack
	}
	return o
}

// class identifies one character family, most specific first.
type class int

const (
	classDigit class = iota
	classUpper
	classLower
	classAlpha // upper and lower merged during promotion
	classLiteral
)

// run is a maximal span of one class within a single string.
type run struct {
	cls  class
	text string // the span itself; consulted only for classLiteral
}

// token is one position of a cluster's pattern: either a class with a
// length range, or a literal (possibly an alternation of literals).
type token struct {
	cls    class
	lo, hi int
	text   string
	alts   []string // alternation branches, including text, when non-nil
}

func (t token) isLiteral() bool {
	return t.cls == classLiteral
}

// cluster groups samples sharing one run signature.
type cluster struct {
	tokens  []token
	samples []string
}

func classOf(r rune) class {
	switch {
	case r >= '0' && r <= '9':
		return classDigit
	case r >= 'A' && r <= 'Z':
		return classUpper
	case r >= 'a' && r <= 'z':
		return classLower
	default:
		return classLiteral
	}
}

// tokenize splits a string into maximal same-class runs.
func tokenize(s string) []run {
	var runs []run
	for _, r := range s {
		c := classOf(r)
		if n := len(runs); n > 0 && runs[n-1].cls == c {
			runs[n-1].text += string(r)
			continue
		}
		runs = append(runs, run{cls: c, text: string(r)})
	}
	return runs
}

// promote widens letter runs to the mixed-case class and merges the
// spans that become adjacent.
func promote(runs []run) []run {
	out := make([]run, 0, len(runs))
	for _, rn := range runs {
		c := rn.cls
		if c == classUpper || c == classLower {
			c = classAlpha
		}
		if n := len(out); n > 0 && out[n-1].cls == c && c != classLiteral {
			out[n-1].text += rn.text
			continue
		}
		out = append(out, run{cls: c, text: rn.text})
	}
	return out
}

func signature(runs []run) string {
	var b strings.Builder
	for _, rn := range runs {
		switch rn.cls {
		case classDigit:
			b.WriteString("d;")
		case classUpper:
			b.WriteString("u;")
		case classLower:
			b.WriteString("l;")
		case classAlpha:
			b.WriteString("a;")
		default:
			fmt.Fprintf(&b, "p(%s);", rn.text)
		}
	}
	return b.String()
}

// fold merges one string's runs into the cluster's per-position length
// ranges. The signature guarantees positional alignment.
func (c *cluster) fold(s string, runs []run) {
	if c.tokens == nil {
		c.tokens = make([]token, len(runs))
		for i, rn := range runs {
			n := len([]rune(rn.text))
			c.tokens[i] = token{cls: rn.cls, lo: n, hi: n, text: rn.text}
		}
	} else {
		for i, rn := range runs {
			n := len([]rune(rn.text))
			if n < c.tokens[i].lo {
				c.tokens[i].lo = n
			}
			if n > c.tokens[i].hi {
				c.tokens[i].hi = n
			}
		}
	}
	c.samples = append(c.samples, s)
}

func (c *cluster) totalRange() (int, int) {
	lo, hi := 0, 0
	for _, t := range c.tokens {
		lo += t.lo
		hi += t.hi
	}
	return lo, hi
}

// Induce returns anchored regular expressions such that every sample
// matches at least one, most specific pattern first. An empty sample
// set yields nil.
func Induce(samples []string, opts Options) []string {
	opts = opts.withDefaults()
	if len(samples) == 0 {
		return nil
	}

	// Distinct samples in first-seen order.
	seen := make(map[string]bool, len(samples))
	var distinct []string
	for _, s := range samples {
		if !seen[s] {
			seen[s] = true
			distinct = append(distinct, s)
		}
	}

	globalLo, globalHi := -1, 0
	for _, s := range distinct {
		n := len([]rune(s))
		if globalLo < 0 || n < globalLo {
			globalLo = n
		}
		if n > globalHi {
			globalHi = n
		}
	}

	// Exact clustering on run signatures, first-seen order.
	byKey := make(map[string]*cluster)
	var clusters []*cluster
	for _, s := range distinct {
		runs := tokenize(s)
		key := signature(runs)
		cl, ok := byKey[key]
		if !ok {
			cl = &cluster{}
			byKey[key] = cl
			clusters = append(clusters, cl)
		}
		cl.fold(s, runs)
	}

	clusters = promoteClusters(clusters)
	clusters = mergeLiteralAlternations(clusters, opts, globalLo, globalHi)

	patterns := make([]string, 0, len(clusters))
	emitted := make(map[string]bool)
	for _, cl := range clusters {
		p := render(cl.tokens)
		if !emitted[p] {
			emitted[p] = true
			patterns = append(patterns, p)
		}
	}
	sortBySpecificity(patterns, clusters)
	return patterns
}

// promoteClusters re-clusters under the mixed-case letter class and
// adopts a promoted cluster wherever it absorbs two or more exact ones.
// Singleton groups keep their more specific original form.
func promoteClusters(clusters []*cluster) []*cluster {
	type group struct {
		members []*cluster
		merged  *cluster
	}
	byKey := make(map[string]*group)
	var order []string
	for _, cl := range clusters {
		key := signature(promote(tokenize(cl.samples[0])))
		g, ok := byKey[key]
		if !ok {
			g = &group{}
			byKey[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, cl)
	}

	var out []*cluster
	for _, key := range order {
		g := byKey[key]
		if len(g.members) == 1 {
			out = append(out, g.members[0])
			continue
		}
		merged := &cluster{}
		for _, member := range g.members {
			for _, s := range member.samples {
				merged.fold(s, promote(tokenize(s)))
			}
		}
		out = append(out, merged)
	}
	return out
}

// mergeLiteralAlternations repeatedly merges cluster pairs that differ
// only at one literal position, subject to the alternation cap and the
// global length-slack guard.
func mergeLiteralAlternations(clusters []*cluster, opts Options, globalLo, globalHi int) []*cluster {
	for {
		merged := false
		for i := 0; i < len(clusters) && !merged; i++ {
			for j := i + 1; j < len(clusters); j++ {
				if tryMerge(clusters[i], clusters[j], opts, globalLo, globalHi) {
					clusters = append(clusters[:j], clusters[j+1:]...)
					merged = true
					break
				}
			}
		}
		if !merged {
			return clusters
		}
	}
}

func tryMerge(a, b *cluster, opts Options, globalLo, globalHi int) bool {
	if len(a.tokens) != len(b.tokens) {
		return false
	}
	diff := -1
	for i := range a.tokens {
		ta, tb := a.tokens[i], b.tokens[i]
		if ta.cls != tb.cls {
			return false
		}
		if ta.isLiteral() {
			if !sameLiterals(ta, tb) {
				if diff >= 0 {
					return false
				}
				diff = i
			}
			continue
		}
		// Class positions may widen; nothing to reject here.
	}
	if diff < 0 {
		// Identical literals throughout: pure range union.
		diff = len(a.tokens) // sentinel: no alternation needed
	}

	candidate := make([]token, len(a.tokens))
	copy(candidate, a.tokens)
	for i := range candidate {
		if !candidate[i].isLiteral() {
			if b.tokens[i].lo < candidate[i].lo {
				candidate[i].lo = b.tokens[i].lo
			}
			if b.tokens[i].hi > candidate[i].hi {
				candidate[i].hi = b.tokens[i].hi
			}
		}
	}
	if diff < len(candidate) {
		alts := unionLiterals(a.tokens[diff], b.tokens[diff])
		if len(alts) > opts.MaxAlternation {
			return false
		}
		lo, hi := literalLengthRange(alts)
		candidate[diff].alts = alts
		candidate[diff].lo, candidate[diff].hi = lo, hi
	}

	probe := &cluster{tokens: candidate}
	lo, hi := probe.totalRange()
	if lo < globalLo-opts.LengthSlack || hi > globalHi+opts.LengthSlack {
		return false
	}

	a.tokens = candidate
	a.samples = append(a.samples, b.samples...)
	return true
}

func sameLiterals(a, b token) bool {
	if a.alts == nil && b.alts == nil {
		return a.text == b.text
	}
	la, lb := literalsOf(a), literalsOf(b)
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if la[i] != lb[i] {
			return false
		}
	}
	return true
}

func literalsOf(t token) []string {
	if t.alts != nil {
		return t.alts
	}
	return []string{t.text}
}

func unionLiterals(a, b token) []string {
	var out []string
	have := make(map[string]bool)
	for _, s := range append(literalsOf(a), literalsOf(b)...) {
		if !have[s] {
			have[s] = true
			out = append(out, s)
		}
	}
	return out
}

func literalLengthRange(literals []string) (int, int) {
	lo, hi := -1, 0
	for _, s := range literals {
		n := len([]rune(s))
		if lo < 0 || n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	if lo < 0 {
		lo = 0
	}
	return lo, hi
}

// render turns a token list into one fully anchored pattern.
func render(tokens []token) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, t := range tokens {
		if t.isLiteral() {
			if t.alts != nil {
				quoted := make([]string, len(t.alts))
				for i, alt := range t.alts {
					quoted[i] = regexp.QuoteMeta(alt)
				}
				b.WriteString("(?:" + strings.Join(quoted, "|") + ")")
			} else {
				b.WriteString(regexp.QuoteMeta(t.text))
			}
			continue
		}
		b.WriteString(classAtom(t.cls))
		b.WriteString(quantifier(t.lo, t.hi))
	}
	b.WriteByte('$')
	return b.String()
}

func classAtom(c class) string {
	switch c {
	case classDigit:
		return `\d`
	case classUpper:
		return `[A-Z]`
	case classLower:
		return `[a-z]`
	default:
		return `[A-Za-z]`
	}
}

func quantifier(lo, hi int) string {
	switch {
	case lo == hi && lo == 1:
		return ""
	case lo == hi:
		return fmt.Sprintf("{%d}", lo)
	default:
		return fmt.Sprintf("{%d,%d}", lo, hi)
	}
}

// sortBySpecificity orders patterns so the verifier tries the most
// informative one first: longest literal prefix, then first-seen.
func sortBySpecificity(patterns []string, _ []*cluster) {
	sort.SliceStable(patterns, func(i, j int) bool {
		return literalPrefixLen(patterns[i]) > literalPrefixLen(patterns[j])
	})
}

// literalPrefixLen counts the literal characters a pattern pins down
// before its first class, group, or quantifier.
func literalPrefixLen(p string) int {
	n := 0
	for i := 1; i < len(p); i++ {
		c := p[i]
		if c == '\\' {
			if i+1 < len(p) && p[i+1] == 'd' {
				break // \d class, not a literal
			}
			i++
			n++
			continue
		}
		if c == '[' || c == '(' || c == '{' || c == '$' {
			break
		}
		n++
	}
	return n
}
