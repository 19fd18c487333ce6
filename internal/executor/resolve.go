package executor

import (
	"github.com/roach88/sqlscript/internal/value"
)

// Resolve looks name up in response first, then request.
func Resolve(name string, request value.Source, response *value.Object) (value.Value, bool) {
	if v, ok := response.Lookup(name); ok {
		return v, true
	}
	if request != nil {
		if v, ok := request.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}
