package tagql

// Validation is the non-throwing result of a syntax check, shaped for
// direct UI consumption.
type Validation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Validate checks expression syntax without surfacing an error to the
// caller. It is the sanctioned boundary that turns Parse failures into
// a data value; callers needing a soft check use this, not Parse.
func Validate(text string) Validation {
	if _, err := Parse(text); err != nil {
		return Validation{Valid: false, Error: err.Error()}
	}
	return Validation{Valid: true}
}
