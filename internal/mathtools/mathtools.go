// Package mathtools provides the demonstration toolset for the funcenums
// CLI: rounding-aware arithmetic, a multi-step chain bridge, and the
// freeform passthrough.
//
// Every function registers through the catalog builder, so schemas, required
// lists, and token costs come out the same way as for any other descriptor.
package mathtools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/frankfralick/openai-func-enums/pkg/asynclog"
	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

// SystemMessage is the default system prompt for the calculator toolset. It
// teaches the model to route sequential work through CallMultiStep, so the
// wording is part of the model-visible contract.
const SystemMessage = "You are an advanced function-calling bot, adept at handling complex, " +
	"multi-step user requests. Your role is to discern and articulate " +
	"each step of a user's request, especially when it involves sequential " +
	"operations. Use the CallMultiStep function for requests that require " +
	"sequential processing. Each step should be described in a separate " +
	"prompt, with attention to whether the steps are independent or " +
	"interdependent. For interdependent steps, ensure each prompt " +
	"accurately represents the sequence and dependencies of the tasks. " +
	"Remember, a single step may encompass multiple tasks that can be " +
	"executed in parallel. Your goal is to capture the entire scope of the " +
	"user's request, structuring it into an appropriate sequence of function " +
	"calls without omitting any steps. For example, if a user asks to add 8 " +
	"and 2 in the first step, and then requests the result to be multiplied " +
	"by 7 and 5 in separate tasks of the second step, use CallMultiStep with " +
	"two prompts: the first for addition, and the second combining both " +
	"multiplication tasks, recognizing their parallel nature."

// callMultiStepDescription tells the model how to split a request into
// chained prompts.
const callMultiStepDescription = "CallMultiStep is designed to efficiently process complex, " +
	"multi-step user requests. It takes an array of text prompts, each detailing a specific " +
	"step in a sequential task. This function is crucial for handling requests where the " +
	"output of one step forms the input of the next. When constructing the prompt list, " +
	"consider the dependency and order of tasks. Independent tasks within the same step " +
	"should be consolidated into a single prompt to leverage parallel processing " +
	"capabilities. This function ensures that multi-step tasks are executed in the correct " +
	"sequence and that all dependencies are respected, thus faithfully representing and " +
	"fulfilling the user's request."

const freeformDescription = "A general purpose response for prompts that do not match any other function."

// ChainRunner runs an ordered list of prompts as a chain and returns the
// final update. CallMultiStep uses it to start a nested chain.
type ChainRunner func(ctx context.Context, prompts []string) (*catalog.Result, error)

// calcArgs is the shared argument shape of the four arithmetic functions.
type calcArgs struct {
	A            float64      `json:"a" jsonschema:"description=The first number."`
	B            float64      `json:"b" jsonschema:"description=The second number."`
	RoundingMode RoundingMode `json:"rounding_mode" jsonschema:"enum=none,enum=nearest,enum=zero,enum=up,enum=down,description=Different modes to round a number."`
}

type multiStepArgs struct {
	PromptList []string `json:"prompt_list" jsonschema:"description=An ordered list of prompts where each step may depend on the result of the prior one."`
}

type promptArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=The prompt to answer directly."`
}

// Toolset bundles the calculator functions with their shared dependencies.
type Toolset struct {
	counter    *tokens.Counter
	runChain   ChainRunner
	alog       *asynclog.Logger
	argCeiling int
}

// ToolsetOption configures a [Toolset].
type ToolsetOption func(*Toolset)

// WithAsyncLogger routes the human-readable result lines through alog, the
// same channel the dispatch layers use for concurrent progress output.
func WithAsyncLogger(alog *asynclog.Logger) ToolsetOption {
	return func(ts *Toolset) {
		ts.alog = alog
	}
}

// WithArgTokenCeiling clamps the counted schema cost of each function
// property, so one verbose enum cannot crowd everything else out of budget
// selection. Zero leaves costs unclamped.
func WithArgTokenCeiling(n int) ToolsetOption {
	return func(ts *Toolset) {
		ts.argCeiling = n
	}
}

// NewToolset builds the toolset. runChain may be nil, in which case
// CallMultiStep fails at execution time rather than registration time; the
// embedding generator registers the toolset without an engine behind it.
func NewToolset(counter *tokens.Counter, runChain ChainRunner, opts ...ToolsetOption) *Toolset {
	ts := &Toolset{
		counter:  counter,
		runChain: runChain,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// Register adds every toolset function to reg.
func (ts *Toolset) Register(reg *catalog.Registry) error {
	var opts []catalog.Option
	if ts.argCeiling > 0 {
		opts = append(opts, catalog.WithArgTokenCeiling(ts.argCeiling))
	}
	build := []func() (*catalog.FunctionDescriptor, error){
		func() (*catalog.FunctionDescriptor, error) {
			return catalog.New("Add", "Adds two numbers", ts.counter, ts.add, opts...)
		},
		func() (*catalog.FunctionDescriptor, error) {
			return catalog.New("Subtract", "Subtracts two numbers", ts.counter, ts.subtract, opts...)
		},
		func() (*catalog.FunctionDescriptor, error) {
			return catalog.New("Multiply", "Multiplies two numbers", ts.counter, ts.multiply, opts...)
		},
		func() (*catalog.FunctionDescriptor, error) {
			return catalog.New("Divide", "Divides two numbers", ts.counter, ts.divide, opts...)
		},
		func() (*catalog.FunctionDescriptor, error) {
			return catalog.New("CallMultiStep", callMultiStepDescription, ts.counter, ts.callMultiStep, opts...)
		},
		func() (*catalog.FunctionDescriptor, error) {
			return catalog.NewFreeform(freeformDescription, ts.counter, ts.freeform)
		},
	}
	for _, b := range build {
		d, err := b()
		if err != nil {
			return err
		}
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (ts *Toolset) add(_ context.Context, args calcArgs) (*catalog.Result, error) {
	out := formatFloat(args.RoundingMode.Round(args.A + args.B))
	ts.say("Result of adding %s and %s with rounding mode %s: %s",
		formatFloat(args.A), formatFloat(args.B), args.RoundingMode, out)
	return calcResult("Add", args, out), nil
}

func (ts *Toolset) subtract(_ context.Context, args calcArgs) (*catalog.Result, error) {
	out := formatFloat(args.RoundingMode.Round(args.A - args.B))
	ts.say("Result of subtracting %s from %s with rounding mode %s: %s",
		formatFloat(args.B), formatFloat(args.A), args.RoundingMode, out)
	return calcResult("Subtract", args, out), nil
}

func (ts *Toolset) multiply(_ context.Context, args calcArgs) (*catalog.Result, error) {
	out := formatFloat(args.RoundingMode.Round(args.A * args.B))
	ts.say("Result of multiplying %s and %s with rounding mode %s: %s",
		formatFloat(args.A), formatFloat(args.B), args.RoundingMode, out)
	return calcResult("Multiply", args, out), nil
}

func (ts *Toolset) divide(_ context.Context, args calcArgs) (*catalog.Result, error) {
	if args.B == 0 {
		return nil, fmt.Errorf("mathtools: cannot divide by zero")
	}
	out := formatFloat(args.RoundingMode.Round(args.A / args.B))
	ts.say("Result of dividing %s by %s with rounding mode %s: %s",
		formatFloat(args.A), formatFloat(args.B), args.RoundingMode, out)
	return calcResult("Divide", args, out), nil
}

// callMultiStep runs the prompt list as a nested chain and propagates the
// nested chain's final update into the enclosing one.
func (ts *Toolset) callMultiStep(ctx context.Context, args multiStepArgs) (*catalog.Result, error) {
	if ts.runChain == nil {
		return nil, fmt.Errorf("mathtools: CallMultiStep has no chain runner configured")
	}
	return ts.runChain(ctx, args.PromptList)
}

// freeform passes the model's direct answer through as the chain update.
func (ts *Toolset) freeform(_ context.Context, args promptArgs) (*catalog.Result, error) {
	ts.say("%s", args.Prompt)
	return &catalog.Result{Output: args.Prompt, Command: []string{catalog.FreeformName}}, nil
}

func (ts *Toolset) say(format string, args ...any) {
	if ts.alog != nil {
		ts.alog.Sendf(format, args...)
	}
}

// calcResult renders one arithmetic outcome as a chain update. Command
// carries the invocation the way a shell would echo it.
func calcResult(name string, args calcArgs, out string) *catalog.Result {
	return &catalog.Result{
		Output:  out,
		Command: []string{name, formatFloat(args.A), formatFloat(args.B), string(args.RoundingMode)},
	}
}

// formatFloat renders v without exponent notation or trailing zeros, so
// chained prompts read naturally.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
