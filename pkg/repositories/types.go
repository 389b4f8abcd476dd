package repositories

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

type ErrAlreadyExists struct {
}

func (e *ErrAlreadyExists) Error() string {
	return "already exists"
}

func IsAlreadyExists(err error) bool {
	_, ok := err.(*ErrAlreadyExists)
	return ok
}

// ErrVersionConflict is returned by conditional writes when the stored
// version no longer matches the expected version.
type ErrVersionConflict struct {
}

func (e *ErrVersionConflict) Error() string {
	return "version conflict"
}

func IsVersionConflict(err error) bool {
	_, ok := err.(*ErrVersionConflict)
	return ok
}
