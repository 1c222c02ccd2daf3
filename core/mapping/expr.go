package mapping

import (
	"fmt"
	"strings"
	"sync"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/utils"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Evaluator compiles and caches expr programs.
type Evaluator struct {
	programs sync.Map
}

// NewEvaluator creates an empty evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) compile(src string) (*vm.Program, error) {
	if p, ok := e.programs.Load(src); ok {
		return p.(*vm.Program), nil
	}
	program, err := expr.Compile(src)
	if err != nil {
		return nil, clienterr.Newf(clienterr.InvalidValues, "expression %q: %v", src, err)
	}
	actual, _ := e.programs.LoadOrStore(src, program)
	return actual.(*vm.Program), nil
}

// Validate compiles src without running it.
func (e *Evaluator) Validate(src string) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	_, err := e.compile(src)
	return err
}

// Eval runs src against env.
func (e *Evaluator) Eval(src string, env map[string]any) (any, error) {
	program, err := e.compile(src)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", src, err)
	}
	return out, nil
}

// Bool evaluates a condition. Empty and "false" are false, "true" is true.
func (e *Evaluator) Bool(cond string, env map[string]any) (bool, error) {
	switch strings.TrimSpace(cond) {
	case "", "false":
		return false, nil
	case "true":
		return true, nil
	}
	out, err := e.Eval(cond, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, clienterr.Newf(clienterr.InvalidValues, "condition %q yields %T, not bool", cond, out)
	}
	return b, nil
}

// Strings evaluates src and flattens the result; nil and empty strings are dropped.
func (e *Evaluator) Strings(src string, env map[string]any) ([]string, error) {
	out, err := e.Eval(src, env)
	if err != nil {
		return nil, err
	}
	return nonEmpty(utils.ToStrings(out)), nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
