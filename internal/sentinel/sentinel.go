package sentinel

var _ error = Error("")

// Error is an immutable error value backed by a string constant.
//
// Because Error is comparable, errors.Is matches it with == anywhere in a
// wrapped chain. Two Error values with the same text are the same error.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}
