package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/Heahaidu/interest-project/pkg/auth"
)

func newConditionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("identity", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return env, nil
}

func compileCondition(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile condition: %w", issues.Err())
	}
	if k := ast.OutputType().Kind(); k != types.BoolKind && k != types.DynKind {
		return nil, fmt.Errorf("condition must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	return program, nil
}

// evalCondition runs a compiled condition. Non-bool results count as false.
func evalCondition(program cel.Program, id *auth.Identity, req Request, params map[string]string) (bool, error) {
	if params == nil {
		params = map[string]string{}
	}
	roles := id.Roles()
	if roles == nil {
		roles = []string{}
	}

	out, _, err := program.Eval(map[string]any{
		"identity": map[string]any{
			"subject": id.Subject(),
			"roles":   roles,
		},
		"request": map[string]any{
			"method": req.Method,
			"path":   req.Path,
			"params": params,
		},
	})
	if err != nil {
		return false, err
	}
	return out.Type() == types.BoolType && out.Value().(bool), nil
}
