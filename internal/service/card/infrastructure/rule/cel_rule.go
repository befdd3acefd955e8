// internal/service/card/infrastructure/rule/cel_rule.go
package rule

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// CELCodeRule 是 domain.CodeRule 接口的 CEL 实现。
// 运营可以在配置里写一条表达式约束导入卡密的格式，
// 例如 code.matches('^[A-Z0-9-]+$')，无需改代码发版。
type CELCodeRule struct {
	program cel.Program
}

// NewCELCodeRule 编译表达式。表达式以 `code` 变量接收卡密内容，
// 必须求值为 bool。
func NewCELCodeRule(expression string) (*CELCodeRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("code", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid code rule expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("code rule expression must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL program: %w", err)
	}
	return &CELCodeRule{program: program}, nil
}

// Validate 实现 domain.CodeRule。
func (r *CELCodeRule) Validate(code string) (bool, error) {
	out, _, err := r.program.Eval(map[string]interface{}{"code": code})
	if err != nil {
		return false, fmt.Errorf("code rule evaluation failed: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("code rule returned non-bool value %v", out.Value())
	}
	return ok, nil
}
