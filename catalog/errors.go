package catalog

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned when neither credential pair is complete.
var ErrMissingCredentials = errors.New("no complete credential pair: need username/password or token id/secret")

// AuthError reports a sign-in rejected by the catalog server.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("catalog sign-in rejected (status %d): %s", e.Status, e.Message)
}

// NotFoundError reports a name that resolved to no entity of its kind.
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with the specified name was not found: %s", e.Kind, e.Name)
}

// AmbiguousError reports a name that matched more than one entity of its
// kind. The caller must supply a disambiguating project name; resolution
// never silently picks one.
type AmbiguousError struct {
	Kind    Kind
	Name    string
	Matches int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("more than one %s matched to %q (%d matches); specify a project name for a distinct match",
		e.Kind, e.Name, e.Matches)
}
