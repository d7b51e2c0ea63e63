package reader

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mcmd1962/p1-slimmelezer/internal/domain"
	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

// The three line shapes, most specific first. A tag key looks like
// "1-0:1.8.1"; values are parenthesized, possibly carrying a unit suffix.
var (
	// tag(value)(sub(...)...) — list-style; only the first value is kept.
	listValuesRE = regexp.MustCompile(`^(\d+-\d+:\d+\.\d+\.\d+)\(([^(]*?)\)\(([^(]*?)\(.*\)$`)
	// tag(v1)(v2) — compound record, split into .A and .B fields.
	twoValuesRE = regexp.MustCompile(`^(\d+-\d+:\d+\.\d+\.\d+)\(([^(]*?)\)\(([^(]*?)\)$`)
	// tag(value) — the common case.
	oneValueRE = regexp.MustCompile(`^(\d+-\d+:\d+\.\d+\.\d+)\(([^(]*?)\)$`)
)

// Parser extracts typed fields from raw telegram lines. A line matching no
// pattern is logged and dropped; parsing never aborts the datagram.
type Parser struct {
	obs   ports.Observability
	rules []rule
}

type rule struct {
	re    *regexp.Regexp
	apply func(p *Parser, d *domain.Datagram, m []string)
}

func NewParser(obs ports.Observability) *Parser {
	p := &Parser{obs: obs}
	p.rules = []rule{
		{listValuesRE, (*Parser).applyListValues},
		{twoValuesRE, (*Parser).applyTwoValues},
		{oneValueRE, (*Parser).applyOneValue},
	}
	return p
}

// ParseLine applies the rules in order until one matches. Returns false if
// the line was unparsable.
func (p *Parser) ParseLine(d *domain.Datagram, line string) bool {
	for _, r := range p.rules {
		if m := r.re.FindStringSubmatch(line); m != nil {
			r.apply(p, d, m)
			return true
		}
	}
	p.obs.IncCounter("p1_lines_unparsed_total", 1)
	p.obs.LogWarn("line not parsed", ports.Field{Key: "line", Value: line})
	return false
}

func (p *Parser) applyOneValue(d *domain.Datagram, m []string) {
	d.Fields[m[1]] = p.convert(m[2])
}

func (p *Parser) applyTwoValues(d *domain.Datagram, m []string) {
	d.Fields[m[1]+".A"] = p.convert(m[2])
	d.Fields[m[1]+".B"] = p.convert(m[3])
}

// applyListValues keeps only the tag and first value; the nested sub-groups
// are discarded on purpose (long-established listener behavior).
func (p *Parser) applyListValues(d *domain.Datagram, m []string) {
	d.Fields[m[1]] = p.convert(m[2])
	p.obs.LogDebug("list-style line, sub-groups discarded",
		ports.Field{Key: "tag", Value: m[1]},
		ports.Field{Key: "second", Value: m[3]})
}

// convert applies the unit suffix rules: m3 and kW(h) scale ×1000 and
// truncate to integer, V stays float, A stays integer, anything else is the
// raw string. Malformed numerics fall back to the raw string.
func (p *Parser) convert(raw string) any {
	switch {
	case strings.Contains(raw, "*m3"), strings.Contains(raw, "*kW"):
		f, err := strconv.ParseFloat(numericPart(raw), 64)
		if err != nil {
			return p.badNumeric(raw, err)
		}
		return int64(1000 * f)
	case strings.Contains(raw, "*V"):
		f, err := strconv.ParseFloat(numericPart(raw), 64)
		if err != nil {
			return p.badNumeric(raw, err)
		}
		return f
	case strings.Contains(raw, "*A"):
		n, err := strconv.ParseInt(numericPart(raw), 10, 64)
		if err != nil {
			return p.badNumeric(raw, err)
		}
		return n
	default:
		return raw
	}
}

func (p *Parser) badNumeric(raw string, err error) any {
	p.obs.LogWarn("value has unit suffix but no parsable number, keeping raw",
		ports.Field{Key: "value", Value: raw},
		ports.Field{Key: "error", Value: err.Error()})
	return raw
}

func numericPart(raw string) string {
	val, _, _ := strings.Cut(raw, "*")
	return val
}
