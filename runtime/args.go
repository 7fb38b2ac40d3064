package runtime

import (
	"strconv"
	"strings"

	"github.com/wippyai/module-bridge/host"
)

// ParseArg reads a command-line argument as a host object:
//
//	42, -7        integer
//	1.5, 2e3      float
//	'name         symbol
//	nil, t        nil and t
//	"text"        string with Go escapes
//
// Anything else is a string taken literally.
func (r *Runtime) ParseArg(s string) host.Object {
	in := r.in
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && host.InRange(n) {
		return host.Fixnum(n)
	}
	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return in.MakeFloat(f)
		}
	}
	switch {
	case s == "nil":
		return host.Nil
	case s == "t":
		return host.T
	case strings.HasPrefix(s, "'") && len(s) > 1:
		return in.Intern(s[1:])
	case strings.HasPrefix(s, `"`):
		if u, err := strconv.Unquote(s); err == nil {
			return in.MakeString(u)
		}
	}
	return in.MakeString(s)
}

// ParseArgs parses each of args with ParseArg.
func (r *Runtime) ParseArgs(args []string) []host.Object {
	out := make([]host.Object, len(args))
	for i, a := range args {
		out[i] = r.ParseArg(a)
	}
	return out
}
