// Package calculator bundles a local arithmetic tool. It runs in-process
// with no network access, which makes it the default smoke-test tool for
// multi-turn conversations.
package calculator

import (
	"context"
	"errors"

	"github.com/llmbridge/bridge/providers/tool"
)

// Name is the registered tool name.
const Name = "calculator"

// Input holds the operands and the operation.
type Input struct {
	A  float64 `json:"a" jsonschema:"description=First operand,required"`
	B  float64 `json:"b" jsonschema:"description=Second operand,required"`
	Op string  `json:"op" jsonschema:"description=Operation to apply,enum=add,enum=sub,enum=mul,enum=div,required"`
}

// Output carries the result.
type Output struct {
	Result float64 `json:"result" jsonschema:"description=The result of the calculation"`
}

// New returns the calculator tool.
func New() *tool.Func[Input, Output] {
	return tool.New(Name, Calc,
		tool.WithDescription("Performs basic arithmetic: add, sub, mul and div on two numbers."),
	)
}

// Calc applies the requested operation. Division by zero is an explicit error
// rather than an IEEE infinity, since the result is fed back to a model.
func Calc(_ context.Context, in Input) (Output, error) {
	switch in.Op {
	case "add", "+":
		return Output{Result: in.A + in.B}, nil
	case "sub", "-":
		return Output{Result: in.A - in.B}, nil
	case "mul", "*":
		return Output{Result: in.A * in.B}, nil
	case "div", "/":
		if in.B == 0 {
			return Output{}, errors.New("division by zero")
		}
		return Output{Result: in.A / in.B}, nil
	default:
		return Output{}, errors.New("unsupported operation: " + in.Op)
	}
}
