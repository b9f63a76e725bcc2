package metadata

import "github.com/bitechdev/ModelSpec/pkg/common"

// Flag is a capability that is either a constant or evaluated per request.
// The zero Flag is false.
type Flag struct {
	value bool
	pred  func(*common.RequestContext) bool
}

// Bool returns a constant flag.
func Bool(v bool) Flag {
	return Flag{value: v}
}

var (
	Always = Bool(true)
	Never  = Bool(false)
)

// When returns a flag evaluated against the request context.
func When(pred func(*common.RequestContext) bool) Flag {
	return Flag{pred: pred}
}

// ElevatedOnly is true only for principals with elevated access.
var ElevatedOnly = When(func(ctx *common.RequestContext) bool {
	return ctx.Elevated()
})

// Eval resolves the flag for ctx. A nil ctx is passed through to predicates.
func (f Flag) Eval(ctx *common.RequestContext) bool {
	if f.pred != nil {
		return f.pred(ctx)
	}
	return f.value
}

// IsConstant reports whether the flag does not depend on the request.
func (f Flag) IsConstant() bool {
	return f.pred == nil
}
