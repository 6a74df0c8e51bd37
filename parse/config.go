/*package parse reads scanfit config files. A config file is a block of
variable assignments underneath a bracketed header naming the config type:

    [refine]
    NumIntervals = 5
    Sigma = -1 # negative means "derive from NumAverage"

Variables are registered against pointers with typed default values before
parsing, in the style of the flag package.
*/
package parse

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type varType int

const (
	intVar varType = iota
	intsVar
	floatVar
	floatsVar
	stringVar
	stringsVar
	boolVar
	boolsVar
)

func (v varType) String() string {
	switch v {
	case intVar:
		return "int"
	case intsVar:
		return "int list"
	case floatVar:
		return "float"
	case floatsVar:
		return "float list"
	case stringVar:
		return "string"
	case stringsVar:
		return "string list"
	case boolVar:
		return "bool"
	case boolsVar:
		return "bool list"
	}
	panic("Impossible")
}

// configVar is one registered variable: its lowercased name, its type, and a
// conversion that writes a raw string into the registered pointer.
type configVar struct {
	name    string
	vtype   varType
	convert func(string) error
}

// ConfigVars is a set of registered variables for one config file type.
type ConfigVars struct {
	name string
	vars []configVar
}

// NewConfigVars creates a variable set for config files with the header
// [name].
func NewConfigVars(name string) *ConfigVars {
	return &ConfigVars{name: name}
}

func (vars *ConfigVars) register(name string, t varType, f func(string) error) {
	vars.vars = append(vars.vars, configVar{
		name: strings.ToLower(name), vtype: t, convert: f,
	})
}

func (vars *ConfigVars) Int(ptr *int64, name string, value int64) {
	*ptr = value
	vars.register(name, intVar, func(s string) error {
		i, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*ptr = int64(i)
		return nil
	})
}

func (vars *ConfigVars) Float(ptr *float64, name string, value float64) {
	*ptr = value
	vars.register(name, floatVar, func(s string) error {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*ptr = f
		return nil
	})
}

func (vars *ConfigVars) String(ptr *string, name string, value string) {
	*ptr = value
	vars.register(name, stringVar, func(s string) error {
		*ptr = strings.TrimSpace(s)
		return nil
	})
}

func (vars *ConfigVars) Bool(ptr *bool, name string, value bool) {
	*ptr = value
	vars.register(name, boolVar, func(s string) error {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*ptr = b
		return nil
	})
}

func (vars *ConfigVars) Ints(ptr *[]int64, name string, value []int64) {
	*ptr = value
	vars.register(name, intsVar, func(s string) error {
		out := []int64{}
		for _, tok := range splitList(s) {
			i, err := strconv.Atoi(tok)
			if err != nil {
				return err
			}
			out = append(out, int64(i))
		}
		*ptr = out
		return nil
	})
}

func (vars *ConfigVars) Floats(ptr *[]float64, name string, value []float64) {
	*ptr = value
	vars.register(name, floatsVar, func(s string) error {
		out := []float64{}
		for _, tok := range splitList(s) {
			f, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return err
			}
			out = append(out, f)
		}
		*ptr = out
		return nil
	})
}

func (vars *ConfigVars) Strings(ptr *[]string, name string, value []string) {
	*ptr = value
	vars.register(name, stringsVar, func(s string) error {
		*ptr = splitList(s)
		return nil
	})
}

func (vars *ConfigVars) Bools(ptr *[]bool, name string, value []bool) {
	*ptr = value
	vars.register(name, boolsVar, func(s string) error {
		out := []bool{}
		for _, tok := range splitList(s) {
			b, err := strconv.ParseBool(tok)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		*ptr = out
		return nil
	})
}

func splitList(s string) []string {
	toks := strings.Split(s, ",")
	for i := range toks {
		toks[i] = strings.TrimSpace(toks[i])
	}
	return toks
}

// assignment is one non-comment config line.
type assignment struct {
	name, val string
	lineNum   int
}

// ReadConfig parses the config file fname against the registered variable
// set. Pointers registered with vars are left at their default values for any
// variable the file does not assign.
func ReadConfig(fname string, vars *ConfigVars) error {
	bs, err := os.ReadFile(fname)
	if err != nil {
		return err
	}
	return readConfigLines(fname, strings.Split(string(bs), "\n"), vars)
}

func readConfigLines(fname string, lines []string, vars *ConfigVars) error {
	assigns, err := associationList(fname, lines, vars.name)
	if err != nil {
		return err
	}

	seen := map[string]int{}
	for _, a := range assigns {
		if prev, ok := seen[a.name]; ok {
			return fmt.Errorf(
				"lines %d and %d of the config file %s both assign a value "+
					"to the variable '%s'", prev, a.lineNum, fname, a.name,
			)
		}
		seen[a.name] = a.lineNum

		v := vars.lookup(a.name)
		if v == nil {
			return fmt.Errorf(
				"line %d of the config file %s assigns a value to the "+
					"variable '%s', but config files of type %s don't have "+
					"that variable", a.lineNum, fname, a.name, vars.name,
			)
		}
		if err := v.convert(a.val); err != nil {
			return fmt.Errorf(
				"line %d of the config file %s: '%s' expects values of "+
					"type %s, but '%s' can't be converted: %w",
				a.lineNum, fname, v.name, v.vtype, a.val, err,
			)
		}
	}

	return nil
}

func (vars *ConfigVars) lookup(name string) *configVar {
	for i := range vars.vars {
		if vars.vars[i].name == name {
			return &vars.vars[i]
		}
	}
	return nil
}

// associationList strips comments and blank lines, checks the [header], and
// splits the remaining lines into name/value pairs.
func associationList(
	fname string, lines []string, header string,
) ([]assignment, error) {
	assigns := []assignment{}
	sawHeader := false

	for i, line := range lines {
		if idx := strings.Index(line, "#"); idx != -1 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		if !sawHeader {
			if line != fmt.Sprintf("[%s]", header) {
				return nil, fmt.Errorf(
					"expected the config file %s to have the header [%s] "+
						"at the top, but didn't find it", fname, header,
				)
			}
			sawHeader = true
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 1 {
			return nil, fmt.Errorf(
				"could not parse line %d of the config file %s because it "+
					"did not take the form of a variable assignment",
				i+1, fname,
			)
		}
		assigns = append(assigns, assignment{
			name:    strings.ToLower(strings.TrimSpace(line[:eq])),
			val:     strings.TrimSpace(line[eq+1:]),
			lineNum: i + 1,
		})
	}

	if !sawHeader {
		return nil, fmt.Errorf(
			"expected the config file %s to have the header [%s] at the "+
				"top, but didn't find it", fname, header,
		)
	}

	return assigns, nil
}
