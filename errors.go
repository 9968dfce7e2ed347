package gotdd

import "errors"

// Precondition errors returned by TDD operations.
// They are wrapped with additional context using fmt.Errorf; test with errors.Is.
// Every operation validates its arguments before touching the node table,
// so an error never leaves partially built nodes behind.
var (
	// ErrShapeMismatch indicates operand shapes or storage orders are
	// incompatible, or an axis list is malformed (unequal lengths,
	// repeated axes, out-of-range axes).
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrBatchShapeMismatch indicates an element-wise batch combination of
	// operands whose batch shapes differ.
	ErrBatchShapeMismatch = errors.New("batch shape mismatch")

	// ErrInvalidIndex indicates an index value outside its axis range.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrUseAfterReset indicates the TDD was built before the engine's
	// node table was reset.
	ErrUseAfterReset = errors.New("TDD used after reset")

	// ErrInvalidNode indicates a node ID does not exist in the node table,
	// or a TDD belongs to another engine.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = errors.New("invalid config")
)
