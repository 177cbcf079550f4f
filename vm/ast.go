package vm

// Expression is any node the compiler accepts as input. Building these
// trees is the caller's job (a surface-syntax parser is explicitly out of
// scope, per §1) — Expression exists so a host program, or a test, can
// hand-construct a program and compile it directly.
type Expression interface {
	isExpression()
}

// ExpressionSeq is an ordered sequence of expressions making up a block
// body, evaluating to its last expression's value (or Nil if empty).
type ExpressionSeq []Expression

type StringExpr struct{ Value string }
type IntExpr struct{ Value int64 }
type EmptyExpr struct{} // the empty expression: evaluates to Nil

type VariableExpr struct{ Name string }

// LetExpr introduces a new binding in the enclosing block's scope,
// initialized by Value (EmptyExpr for "let x" with no initializer).
type LetExpr struct {
	Name  string
	Value Expression
}

type AssignExpr struct {
	Name  string
	Value Expression
}

type GetPropExpr struct {
	Receiver Expression
	Name     string
}

type SetPropExpr struct {
	Receiver Expression
	Name     string
	Value    Expression
}

// GetIndexExpr and SetIndexExpr desugar to Send(obj, "[]")(keys…) and
// Send(obj, "[]=")(keys…, value) respectively during compilation, per the
// indexing sugar the compiler applies. Keys is variadic — obj[a,b] passes
// both a and b to the "[]" method as separate arguments.
type GetIndexExpr struct {
	Receiver Expression
	Keys     []Expression
}

type SetIndexExpr struct {
	Receiver Expression
	Keys     []Expression
	Value    Expression
}

// CallExpr calls Callee directly (a Function, CppFunction, or Klass value),
// as opposed to SendExpr's dynamic method dispatch.
type CallExpr struct {
	Callee Expression
	Args   []Expression
}

// SendExpr dispatches Selector on Receiver via the receiver's class's
// method table, per §4.2. Send itself takes no arguments beyond the
// receiver — it looks up the method and calls it with only Receiver,
// yielding the bound value a following CallExpr applies real arguments to.
type SendExpr struct {
	Receiver Expression
	Selector string
}

// UnaryExpr desugars to a bare SendExpr (the operator send's own result is
// the final value, no further Call needed); BinaryExpr desugars to a
// SendExpr wrapped in a CallExpr taking Right (e.g. "not b" becomes
// b.send("not"), "a + b" becomes a.send("+")(b)), per the operator sugar
// the compiler applies.
type UnaryExpr struct {
	Op      string
	Operand Expression
}

type BinaryExpr struct {
	Op          string
	Left, Right Expression
}

// AndExpr and OrExpr short-circuit, compiled to jumps rather than sent as
// ordinary methods, since their right-hand side must not be evaluated
// unconditionally.
type AndExpr struct{ Left, Right Expression }
type OrExpr struct{ Left, Right Expression }

// BlockExpr introduces a new lexical scope over Body; every LetExpr inside
// Body is local to it.
type BlockExpr struct{ Body ExpressionSeq }

// IfBranch is one condition/body arm of an IfExpr's if/elif chain.
type IfBranch struct {
	Cond Expression
	Body Expression
}

// IfExpr is an if/elif*/else chain, per §4.4: Branches are tried in order,
// the first whose Cond is true runs its Body; if none match, Otherwise
// runs (EmptyExpr when there is no else clause).
type IfExpr struct {
	Branches  []IfBranch
	Otherwise Expression
}

type WhileExpr struct {
	Cond Expression
	Body Expression
}

// TryExpr evaluates Body under an active catch handler; if it (or anything
// it calls) throws, Handler runs with the thrown value bound to Name,
// per §4.3.
type TryExpr struct {
	Body    Expression
	Name    string
	Handler Expression
}

// DeferExpr registers Body to run when the enclosing block (or function
// body) is left, whether normally or via an in-flight exception, per
// §4.4's deferred-handler compilation; a break/continue/return that would
// leave that block is a compile error. It evaluates to Nil at the point
// it's reached (Body runs later, at scope exit), not immediately.
type DeferExpr struct{ Body Expression }

// LambdaExpr and MethodExpr both compile to a FunctionProto constant plus a
// MakeUp/CopyUp sequence; MethodExpr additionally binds an implicit "self"
// as its first parameter (compiled the same way LambdaExpr is otherwise).
type LambdaExpr struct {
	Params []string
	Body   ExpressionSeq
}

// MethodExpr desugars per §4.4: with Params present (including an empty,
// explicit arg list) it curries to fn(self) { fn(Params...) Body } so that
// Send's single-argument calling convention returns a callable a following
// Call then applies Params to; with Params nil (no argument list at all)
// it desugars directly to fn(self) Body, and Send's result is the method's
// final value with nothing further to call. The nil-vs-empty-slice
// distinction is load-bearing — do not normalize one into the other.
type MethodExpr struct {
	Name   string
	Params []string
	Body   ExpressionSeq
}

type BreakExpr struct{}
type ContinueExpr struct{}

// ReturnExpr returns from the enclosing function. Value is EmptyExpr for a
// bare "return", which evaluates to Nil per §9's resolved open question.
type ReturnExpr struct{ Value Expression }

type ThrowExpr struct{ Value Expression }

func (StringExpr) isExpression()   {}
func (IntExpr) isExpression()      {}
func (EmptyExpr) isExpression()    {}
func (VariableExpr) isExpression() {}
func (LetExpr) isExpression()      {}
func (AssignExpr) isExpression()   {}
func (GetPropExpr) isExpression()  {}
func (SetPropExpr) isExpression()  {}
func (GetIndexExpr) isExpression() {}
func (SetIndexExpr) isExpression() {}
func (CallExpr) isExpression()     {}
func (SendExpr) isExpression()     {}
func (UnaryExpr) isExpression()    {}
func (BinaryExpr) isExpression()   {}
func (AndExpr) isExpression()      {}
func (OrExpr) isExpression()       {}
func (BlockExpr) isExpression()    {}
func (IfExpr) isExpression()       {}
func (WhileExpr) isExpression()    {}
func (TryExpr) isExpression()      {}
func (DeferExpr) isExpression()    {}
func (LambdaExpr) isExpression()   {}
func (MethodExpr) isExpression()   {}
func (BreakExpr) isExpression()    {}
func (ContinueExpr) isExpression() {}
func (ReturnExpr) isExpression()   {}
func (ThrowExpr) isExpression()    {}
