package pipeline

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/model"
)

var (
	// ErrUnresolvable is matched by errors.Is when neither a direct scrape
	// nor the search fallback produced facts for an entity.
	ErrUnresolvable = eris.New("pipeline: unresolvable entity")
	// ErrNoEntities is returned by Inferrer.Run when the store is empty.
	ErrNoEntities = eris.New("pipeline: no entities to infer from")
)

// CollaboratorError reports a failure of an external collaborator (scraper,
// search, news or store) at a given stage.
type CollaboratorError struct {
	Stage model.Stage
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// UnresolvableError carries the entity name and the last failure that made
// it unresolvable.
type UnresolvableError struct {
	Name  string
	Cause error
}

func (e *UnresolvableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("pipeline: unresolvable entity %q", e.Name)
	}
	return fmt.Sprintf("pipeline: unresolvable entity %q: %v", e.Name, e.Cause)
}

func (e *UnresolvableError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrUnresolvable) hold.
func (e *UnresolvableError) Is(target error) bool {
	return target == ErrUnresolvable
}
