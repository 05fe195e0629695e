// Package sequenceparallel tags parameters whose gradients must be
// all-reduced across the tensor-parallel group when sequence parallelism is
// on. The reduction itself belongs to the training framework; this package
// only records which parameters take part.
package sequenceparallel

// Attr is the attribute key set on tagged parameters.
const Attr = "sequence_parallel"

// Attributed is anything that carries named attributes, such as nn.Parameter.
type Attributed interface {
	SetAttr(key string, value any)
	Attr(key string) (any, bool)
}

// MarkFunc tags a single parameter.
type MarkFunc func(p Attributed)

// MarkParameter sets the sequence_parallel attribute on p.
func MarkParameter(p Attributed) {
	p.SetAttr(Attr, true)
}

// IsSequenceParallel reports whether p has been tagged.
func IsSequenceParallel(p Attributed) bool {
	v, ok := p.Attr(Attr)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Filter returns the tagged parameters in order.
func Filter[P Attributed](params []P) []P {
	var out []P
	for _, p := range params {
		if IsSequenceParallel(p) {
			out = append(out, p)
		}
	}
	return out
}
