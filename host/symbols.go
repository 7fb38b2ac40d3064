package host

// Static symbols are created at package initialization and interned into
// every interpreter. DefineSymbol must only be called from package-level
// variable declarations or init functions.
var static = map[string]*Symbol{}

// DefineSymbol returns the static symbol called name, creating it if needed.
func DefineSymbol(name string) *Symbol {
	if s, ok := static[name]; ok {
		return s
	}
	s := &Symbol{Name: name}
	static[name] = s
	return s
}

var (
	Nil = DefineSymbol("nil")
	T   = DefineSymbol("t")

	QerrorConditions = DefineSymbol("error-conditions")
	QerrorMessage    = DefineSymbol("error-message")

	Qerror                  = DefineSymbol("error")
	QwrongTypeArgument      = DefineSymbol("wrong-type-argument")
	QargsOutOfRange         = DefineSymbol("args-out-of-range")
	QarithError             = DefineSymbol("arith-error")
	QoverflowError          = DefineSymbol("overflow-error")
	QwrongNumberOfArguments = DefineSymbol("wrong-number-of-arguments")
	QinvalidFunction        = DefineSymbol("invalid-function")
	QvoidFunction           = DefineSymbol("void-function")
	QnoCatch                = DefineSymbol("no-catch")
	QmemoryFull             = DefineSymbol("memory-full")
	QexcessiveLispNesting   = DefineSymbol("excessive-lisp-nesting")
	QsettingConstant        = DefineSymbol("setting-constant")
	QvoidVariable           = DefineSymbol("void-variable")

	Qintegerp  = DefineSymbol("integerp")
	Qnumberp   = DefineSymbol("numberp")
	Qfloatp    = DefineSymbol("floatp")
	Qstringp   = DefineSymbol("stringp")
	Qsymbolp   = DefineSymbol("symbolp")
	Qvectorp   = DefineSymbol("vectorp")
	Qlistp     = DefineSymbol("listp")
	Qsequencep = DefineSymbol("sequencep")
	QuserPtrp  = DefineSymbol("user-ptrp")
	Qwholenump = DefineSymbol("wholenump")
	Qsymbol    = DefineSymbol("symbol")
)

func init() {
	Nil.Value = Nil
	T.Value = T

	DefineError(Qerror, "error")
	DefineError(QwrongTypeArgument, "Wrong type argument")
	DefineError(QargsOutOfRange, "Args out of range")
	DefineError(QarithError, "Arithmetic error")
	DefineError(QoverflowError, "Arithmetic overflow error", QarithError)
	DefineError(QwrongNumberOfArguments, "Wrong number of arguments")
	DefineError(QinvalidFunction, "Invalid function")
	DefineError(QvoidFunction, "Symbol's function definition is void")
	DefineError(QnoCatch, "No catch for tag")
	DefineError(QmemoryFull, "Memory exhausted")
	DefineError(QexcessiveLispNesting, "Lisp nesting exceeds max-lisp-eval-depth")
	DefineError(QsettingConstant, "Attempt to set a constant symbol")
	DefineError(QvoidVariable, "Symbol's value as variable is void")
}

// DefineError marks sym as an error symbol with the given message. Its
// conditions are sym itself, then parents, then error.
func DefineError(sym *Symbol, message string, parents ...*Symbol) {
	conds := []Object{sym}
	for _, p := range parents {
		conds = append(conds, p)
	}
	if sym != Qerror {
		conds = append(conds, Qerror)
	}
	sym.Put(QerrorConditions, List(conds...))
	sym.Put(QerrorMessage, NewString(message))
}

// Conditions returns the error conditions of an error symbol.
func Conditions(sym Object) []Object {
	s, ok := sym.(*Symbol)
	if !ok {
		return nil
	}
	return ListItems(s.Get(QerrorConditions))
}
