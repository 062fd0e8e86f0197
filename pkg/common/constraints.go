package common

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
)

// CompiledConstraints holds a set of compiled CEL boolean expressions that
// must all hold for a request to be accepted.
type CompiledConstraints struct {
	exprs    []string
	programs []cel.Program
	vars     map[string]VarType
	logger   *Logger
}

// NewCompiledConstraints compiles a list of CEL constraint expressions.
//
// Parameters:
//   - constraints: The CEL expressions; each one must evaluate to a boolean
//   - vars: The variables the expressions may refer to, with their types
//   - logger: Used for tracing evaluation; may be nil
//
// Returns:
//   - The compiled constraints
//   - An error if an expression does not compile or a type is unsupported
func NewCompiledConstraints(constraints []string, vars map[string]VarType, logger *Logger) (*CompiledConstraints, error) {
	cc := &CompiledConstraints{vars: vars, logger: logger}
	if len(constraints) == 0 {
		return cc, nil
	}

	// Declare in a stable order so compile errors are reproducible.
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var envOpts []cel.EnvOption
	for _, name := range names {
		switch vars[name] {
		case VarString, "":
			envOpts = append(envOpts, cel.Variable(name, cel.StringType))
		case VarNumber:
			envOpts = append(envOpts, cel.Variable(name, cel.DoubleType))
		case VarBool:
			envOpts = append(envOpts, cel.Variable(name, cel.BoolType))
		default:
			return nil, fmt.Errorf("unsupported variable type for CEL: %s", vars[name])
		}
	}

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	for _, expr := range constraints {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile constraint '%s': %w", expr, issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("constraint '%s' must evaluate to a boolean, not %s", expr, ast.OutputType())
		}

		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for constraint '%s': %w", expr, err)
		}

		cc.exprs = append(cc.exprs, expr)
		cc.programs = append(cc.programs, prg)
	}

	return cc, nil
}

// Len returns the number of compiled expressions
func (cc *CompiledConstraints) Len() int {
	if cc == nil {
		return 0
	}
	return len(cc.programs)
}

// Evaluate evaluates all compiled constraints against the provided values.
// Declared variables missing from args get their type's zero value.
//
// Parameters:
//   - args: Map of variable names to their values
//
// Returns:
//   - true if all constraints pass, false otherwise
//   - error if an expression fails to evaluate
func (cc *CompiledConstraints) Evaluate(args map[string]interface{}) (bool, error) {
	if cc.Len() == 0 {
		return true, nil
	}

	evalArgs := make(map[string]interface{}, len(cc.vars))
	for name, typ := range cc.vars {
		evalArgs[name] = typ.zero()
	}
	for k, v := range args {
		evalArgs[k] = v
	}

	for i, prg := range cc.programs {
		val, _, err := prg.Eval(evalArgs)
		if err != nil {
			return false, fmt.Errorf("constraint '%s' evaluation error: %w", cc.exprs[i], err)
		}

		boolVal, ok := val.Value().(bool)
		if !ok {
			return false, fmt.Errorf("constraint '%s' did not evaluate to a boolean", cc.exprs[i])
		}
		if !boolVal {
			cc.logger.Debug("constraint '%s' rejected %v", cc.exprs[i], args)
			return false, nil
		}
	}

	return true, nil
}
