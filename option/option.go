// Package option models the compiler flags threaded through a Version's
// pipeline stages: an Option is a (tag, prefix, value) triple, and a List
// is the order-preserving sequence a backend renders into a command line.
package option

// Option is an immutable (tag, prefix, value) triple.
//
// Tag identifies the option for deduplication and removal within a List.
// Prefix and Value are concatenated to produce the rendered form handed to
// a backend, e.g. Prefix "-O" and Value "3" render as "-O3".
type Option struct {
	tag    string
	prefix string
	value  string
}

// New constructs an Option. val defaults to "" when omitted.
func New(tag, prefix string, val ...string) Option {
	var v string
	if len(val) > 0 {
		v = val[0]
	}
	return Option{tag: tag, prefix: prefix, value: v}
}

// Tag returns the option's identifier.
func (o Option) Tag() string { return o.tag }

// Prefix returns the string prepended to the value.
func (o Option) Prefix() string { return o.prefix }

// Value returns the option's value.
func (o Option) Value() string { return o.value }

// Rendered returns Prefix+Value, the form equality and ordering are based on.
func (o Option) Rendered() string { return o.prefix + o.value }

// Equal reports whether two Options render identically.
func (o Option) Equal(other Option) bool { return o.Rendered() == other.Rendered() }

// Less orders Options by their rendered form, for stable sorting in tests
// and diagnostics. It is not used by any core algorithm.
func (o Option) Less(other Option) bool { return o.Rendered() < other.Rendered() }

// Define builds the conventional "-D name=value" function-flag Option,
// tagged "enable_define", matching VersionBuilder.AddDefine.
func Define(name, value string) Option {
	return New("enable_define", "-D", name+"="+value)
}

// Flag builds a bare "-D flag" function-flag Option, used by
// VersionBuilder.AddFunctionFlag.
func Flag(flag string) Option {
	return New("enable_define", "-D", flag)
}

// List is an ordered, order-preserving sequence of Options. The zero value
// is an empty, usable List.
type List []Option

// Clone returns an independent copy of the List.
func (l List) Clone() List {
	if len(l) == 0 {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}

// Append returns a new List with o appended; l is not mutated.
func (l List) Append(o Option) List {
	out := make(List, len(l), len(l)+1)
	copy(out, l)
	return append(out, o)
}

// Remove returns a new List with every Option tagged tag removed. l is not
// mutated: after removing a tag, the sequence contains no Option with that
// tag.
func (l List) Remove(tag string) List {
	if len(l) == 0 {
		return l
	}
	out := make(List, 0, len(l))
	for _, o := range l {
		if o.tag != tag {
			out = append(out, o)
		}
	}
	return out
}

// PrependList returns a new List with prefix's Options placed before l's,
// used at Version seal time to place function flags strictly before all
// other options.
func (l List) PrependList(prefix List) List {
	out := make(List, 0, len(prefix)+len(l))
	out = append(out, prefix...)
	out = append(out, l...)
	return out
}

// Rendered renders every Option in order, for logging and command
// construction; callers needing back-end-specific quoting should use the
// backend's RenderOption on each Option instead.
func (l List) Rendered() []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, len(l))
	for i, o := range l {
		out[i] = o.Rendered()
	}
	return out
}

// HasTag reports whether any Option in l carries tag.
func (l List) HasTag(tag string) bool {
	for _, o := range l {
		if o.tag == tag {
			return true
		}
	}
	return false
}
