package playout

import "strings"

// validationErrors holds every violation found by Config.Validate.
type validationErrors []error

func (e validationErrors) Error() string {
	s := make([]string, 0, len(e))
	for _, err := range e {
		s = append(s, err.Error())
	}
	return strings.Join(s, "; ")
}

func (e validationErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if the list is empty.
func (e validationErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
