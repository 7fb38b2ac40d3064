package host

import (
	"strings"

	errs "github.com/wippyai/module-bridge/errors"
)

// ErrHandlerOverflow is returned by PushHandler when the handler stack is full.
var ErrHandlerOverflow = errs.New(errs.PhaseHost, errs.KindAllocation).
	Detail("handler stack exhausted").
	Build()

// SignalError is a host error in flight. It is raised as a panic by Signal
// and returned as an error by Protect and Call.
type SignalError struct {
	Symbol Object
	Data   Object
}

func (e *SignalError) Error() string {
	var b strings.Builder
	msg := ""
	if s, ok := e.Symbol.(*Symbol); ok {
		if m, ok := s.Get(QerrorMessage).(*String); ok {
			msg = m.S
		}
	}
	if msg == "" {
		msg = "peculiar error"
		b.WriteString(msg)
		b.WriteString(": ")
		b.WriteString(Print(e.Symbol))
		if !IsNil(e.Data) {
			b.WriteByte(' ')
			b.WriteString(Print(e.Data))
		}
		return b.String()
	}
	b.WriteString(msg)
	items := ListItems(e.Data)
	// A lone string argument to a plain error is the message itself.
	if e.Symbol == Qerror && len(items) == 1 {
		if s, ok := items[0].(*String); ok {
			return s.S
		}
	}
	for i, it := range items {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(Print(it))
	}
	return b.String()
}

// Is reports whether target is a SignalError whose symbol is one of this
// error's conditions.
func (e *SignalError) Is(target error) bool {
	t, ok := target.(*SignalError)
	if !ok {
		return false
	}
	if t.Symbol == e.Symbol {
		return true
	}
	for _, c := range Conditions(e.Symbol) {
		if c == t.Symbol {
			return true
		}
	}
	return false
}

// Signaled reports whether err is a host error handled by condition sym.
func Signaled(err error, sym *Symbol) bool {
	se, ok := err.(*SignalError)
	if !ok {
		return false
	}
	return se.Is(&SignalError{Symbol: sym})
}

// ThrowError is a tag-based escape in flight.
type ThrowError struct {
	Tag   Object
	Value Object
}

func (e *ThrowError) Error() string {
	return "throw to " + Print(e.Tag) + ": " + Print(e.Value)
}

// HandlerKind selects what a handler intercepts.
type HandlerKind int

const (
	// CatchTag intercepts throws to one tag.
	CatchTag HandlerKind = iota
	// CatchAll intercepts every throw and every signal.
	CatchAll
	// ConditionCase intercepts signals matching its conditions.
	ConditionCase
)

// Handler is an installed entry of the handler stack.
type Handler struct {
	Tag        Object
	Conditions []Object
	Kind       HandlerKind
}

// PushHandler installs a handler. It fails without side effects when the
// stack is full.
func (in *Interp) PushHandler(kind HandlerKind, tag Object, conditions ...Object) (*Handler, error) {
	if len(in.handlers) >= in.cfg.MaxHandlers {
		return nil, ErrHandlerOverflow
	}
	h := &Handler{Kind: kind, Tag: tag, Conditions: conditions}
	in.handlers = append(in.handlers, h)
	return h, nil
}

// PopHandler removes h together with any handler installed after it.
// Popping a handler that is not installed is a programming error.
func (in *Interp) PopHandler(h *Handler) {
	if !in.unwindTo(h) {
		panic("host: pop of a handler that is not installed")
	}
}

// Handlers returns the current depth of the handler stack.
func (in *Interp) Handlers() int {
	return len(in.handlers)
}

// Signal raises a host error. It does not return.
func (in *Interp) Signal(sym Object, data Object) {
	if data == nil {
		data = Nil
	}
	panic(&SignalError{Symbol: sym, Data: data})
}

// Throw escapes to the innermost catch for tag. Without one it signals
// no-catch with (tag value).
func (in *Interp) Throw(tag, value Object) {
	for i := len(in.handlers) - 1; i >= 0; i-- {
		h := in.handlers[i]
		if h.Kind == CatchAll || (h.Kind == CatchTag && h.Tag == tag) {
			panic(&ThrowError{Tag: tag, Value: value})
		}
	}
	in.Signal(QnoCatch, List(tag, value))
}

// Catch runs fn and returns the value thrown to tag, or fn's result.
func (in *Interp) Catch(tag Object, fn func() Object) (result Object) {
	h, err := in.PushHandler(CatchTag, tag)
	if err != nil {
		in.MemoryFull()
	}
	depth := in.depth
	defer func() {
		in.unwindTo(h)
		if r := recover(); r != nil {
			if t, ok := r.(*ThrowError); ok && t.Tag == tag {
				in.depth = depth
				result = t.Value
				return
			}
			panic(r)
		}
	}()
	return fn()
}

// ConditionCase runs fn. A signal matching one of conditions (or T) is
// caught and returned as caught; other panics propagate.
func (in *Interp) ConditionCase(fn func() Object, conditions ...Object) (result Object, caught *SignalError) {
	h, err := in.PushHandler(ConditionCase, nil, conditions...)
	if err != nil {
		in.MemoryFull()
	}
	depth := in.depth
	defer func() {
		in.unwindTo(h)
		if r := recover(); r != nil {
			if se, ok := r.(*SignalError); ok && handles(conditions, se) {
				in.depth = depth
				result, caught = Nil, se
				return
			}
			panic(r)
		}
	}()
	return fn(), nil
}

func handles(conditions []Object, se *SignalError) bool {
	for _, c := range conditions {
		if c == T || se.Is(&SignalError{Symbol: c}) {
			return true
		}
	}
	return false
}

// unwindTo pops every handler above and including h. Handlers installed by
// frames that were unwound by a panic are discarded too.
func (in *Interp) unwindTo(h *Handler) bool {
	for i := len(in.handlers) - 1; i >= 0; i-- {
		if in.handlers[i] == h {
			clear(in.handlers[i:])
			in.handlers = in.handlers[:i]
			return true
		}
	}
	return false
}
