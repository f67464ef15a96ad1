package model

// Actor is who caused a change: the system or a user. The zero value is the
// system.
type Actor struct {
	userID string
}

var SystemActor = Actor{}

func UserActor(id string) Actor {
	return Actor{userID: id}
}

func (a Actor) IsSystem() bool {
	return a.userID == ""
}

func (a Actor) UserID() (string, bool) {
	return a.userID, a.userID != ""
}

// Ref is the nullable column form used by OrderHistory.ChangedByID and
// AuditLog.ActorID.
func (a Actor) Ref() *string {
	if a.IsSystem() {
		return nil
	}
	id := a.userID
	return &id
}

func (a Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	return "user:" + a.userID
}
