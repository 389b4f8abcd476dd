package battles

type ErrCityLocked struct {
}

func (e *ErrCityLocked) Error() string {
	return "city is locked"
}

func IsCityLocked(err error) bool {
	_, ok := err.(*ErrCityLocked)
	return ok
}

type ErrInvalidCity struct {
}

func (e *ErrInvalidCity) Error() string {
	return "invalid city number"
}

func IsInvalidCity(err error) bool {
	_, ok := err.(*ErrInvalidCity)
	return ok
}

type ErrBattleAlreadyActive struct {
}

func (e *ErrBattleAlreadyActive) Error() string {
	return "battle already active"
}

func IsBattleAlreadyActive(err error) bool {
	_, ok := err.(*ErrBattleAlreadyActive)
	return ok
}

// ErrBattleFinished rejects actions against a terminal battle. The
// rejection is idempotent: a finished battle never changes status.
type ErrBattleFinished struct {
}

func (e *ErrBattleFinished) Error() string {
	return "battle is finished"
}

func IsBattleFinished(err error) bool {
	_, ok := err.(*ErrBattleFinished)
	return ok
}

type ErrNotYourBattle struct {
}

func (e *ErrNotYourBattle) Error() string {
	return "battle belongs to another avatar"
}

func IsNotYourBattle(err error) bool {
	_, ok := err.(*ErrNotYourBattle)
	return ok
}

type ErrInvalidAction struct {
}

func (e *ErrInvalidAction) Error() string {
	return "invalid action"
}

func IsInvalidAction(err error) bool {
	_, ok := err.(*ErrInvalidAction)
	return ok
}

// ErrBusy is surfaced when concurrent mutations keep conflicting after
// the bounded retries are exhausted.
type ErrBusy struct {
}

func (e *ErrBusy) Error() string {
	return "avatar is busy, retry"
}

func IsBusy(err error) bool {
	_, ok := err.(*ErrBusy)
	return ok
}
