package models

import "fmt"

type OwnerKind string

const (
	OwnerUser    OwnerKind = "user"
	OwnerSession OwnerKind = "session"
)

// OwnerKey identifies who a chat history belongs to: an authenticated
// user or an anonymous browser session, never both.
type OwnerKey struct {
	Kind OwnerKind
	ID   string
}

func UserOwner(id string) OwnerKey    { return OwnerKey{Kind: OwnerUser, ID: id} }
func SessionOwner(id string) OwnerKey { return OwnerKey{Kind: OwnerSession, ID: id} }

// ResolveOwner prefers the user id and falls back to the session id.
func ResolveOwner(userID, sessionID string) (OwnerKey, bool) {
	if userID != "" {
		return UserOwner(userID), true
	}
	if sessionID != "" {
		return SessionOwner(sessionID), true
	}
	return OwnerKey{}, false
}

func (o OwnerKey) IsZero() bool { return o.ID == "" }

// Columns returns the (user_id, session_id) pair for storage; exactly one is non-nil.
func (o OwnerKey) Columns() (userID, sessionID *string) {
	id := o.ID
	if o.Kind == OwnerUser {
		return &id, nil
	}
	return nil, &id
}

func (o OwnerKey) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}
