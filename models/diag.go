package models

// Diag receives data-quality findings during parsing and mapping. Malformed
// files produce warnings here instead of errors so analysis can continue.
type Diag interface {
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

type nopDiag struct{}

func (nopDiag) Warnf(format string, args ...interface{}) {}
func (nopDiag) Infof(format string, args ...interface{}) {}

// NopDiag discards all diagnostics.
var NopDiag Diag = nopDiag{}
