package dice

import "github.com/forgelab/dice/dicekey"

// Evaluator computes the value of a key, issuing further requests through
// ctx so the engine can record the dependency edges it consults. An
// Evaluator must be deterministic given the values it reads through ctx:
// the engine assumes that recomputing with unchanged dependency values
// yields a ValuesEqual result.
type Evaluator interface {
	Evaluate(ctx *Context, key dicekey.Key) (dicekey.Value, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx *Context, key dicekey.Key) (dicekey.Value, error)

func (f EvaluatorFunc) Evaluate(ctx *Context, key dicekey.Key) (dicekey.Value, error) {
	return f(ctx, key)
}
