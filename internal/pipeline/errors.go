package pipeline

import "fmt"

// Error is the typed error surfaced by the pipeline and resolvers.
// Status carries the HTTP-shaped status code callers map onto their
// transport; the core itself never serves HTTP.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func NewError(code string, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

// AccessDenied is raised when an RLS predicate rejects a row.
// Never retried, always surfaced.
func AccessDenied(op OpKind, entity string) *Error {
	return &Error{
		Code:    "ACCESS_DENIED",
		Status:  403,
		Message: fmt.Sprintf("access denied for %s on %s", op, entity),
	}
}

// UnknownEntity is a fatal configuration error: the schema registry does not
// recognize the entity name.
func UnknownEntity(name string) *Error {
	return &Error{
		Code:    "UNKNOWN_ENTITY",
		Status:  500,
		Message: fmt.Sprintf("unknown entity: %s", name),
	}
}

// UnknownRelation is a fatal configuration error in a relation descriptor.
func UnknownRelation(name, target string) *Error {
	return &Error{
		Code:    "UNKNOWN_RELATION",
		Status:  500,
		Message: fmt.Sprintf("relation %s targets unknown entity %s", name, target),
	}
}

// DependencyCycle is raised when computed-field dependencies loop.
func DependencyCycle(field string) *Error {
	return &Error{
		Code:    "DEPENDENCY_CYCLE",
		Status:  500,
		Message: fmt.Sprintf("computed field dependency cycle at %s", field),
	}
}

// UnknownComputedField is raised when a declared dependency has no descriptor.
func UnknownComputedField(field, dep string) *Error {
	return &Error{
		Code:    "UNKNOWN_COMPUTED_FIELD",
		Status:  500,
		Message: fmt.Sprintf("computed field %s depends on unknown field %s", field, dep),
	}
}

// ChainMisuse is raised when a continuation middleware calls next twice.
func ChainMisuse(middleware string) *Error {
	return &Error{
		Code:    "CHAIN_MISUSE",
		Status:  500,
		Message: fmt.Sprintf("middleware %s called next more than once", middleware),
	}
}
