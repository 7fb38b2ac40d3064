package host

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders o in read syntax where one exists.
func Print(o Object) string {
	var b strings.Builder
	print1(&b, o, 0)
	return b.String()
}

const maxPrintDepth = 64

func print1(b *strings.Builder, o Object, depth int) {
	if depth > maxPrintDepth {
		b.WriteString("...")
		return
	}
	switch x := o.(type) {
	case nil:
		b.WriteString("nil")
	case Fixnum:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case *Symbol:
		b.WriteString(x.Name)
	case *Float:
		b.WriteString(formatFloat(x.V))
	case *String:
		b.WriteString(strconv.Quote(x.S))
	case *Cons:
		b.WriteByte('(')
		var cur Object = x
		first := true
		for {
			c, ok := cur.(*Cons)
			if !ok {
				break
			}
			if !first {
				b.WriteByte(' ')
			}
			first = false
			print1(b, c.Car, depth+1)
			cur = c.Cdr
		}
		if !IsNil(cur) {
			b.WriteString(" . ")
			print1(b, cur, depth+1)
		}
		b.WriteByte(')')
	case *Vector:
		b.WriteByte('[')
		for i, it := range x.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			print1(b, it, depth+1)
		}
		b.WriteByte(']')
	case *UserPtr:
		fmt.Fprintf(b, "#<user-ptr ptr=%v finalizer=%t>", x.Ptr(), x.Finalizer() != nil)
	case *Subr:
		b.WriteString("#<subr ")
		b.WriteString(x.Name)
		b.WriteByte('>')
	case fmt.Stringer:
		b.WriteString(x.String())
	default:
		fmt.Fprintf(b, "#<%s>", o.TypeName())
	}
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if strings.ContainsAny(s, ".eEnI") {
		return s
	}
	return s + ".0"
}
