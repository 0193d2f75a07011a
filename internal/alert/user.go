package alert

// User is an opaque reference to a chat user.
//
// Equality is by ID only. Two users without an ID compare equal to each
// other; callers that track membership rely on this, so keep it.
type User struct {
	ID      *int64 `json:"id,omitempty" yaml:"id,omitempty"`
	Display string `json:"display" yaml:"display"`
}

// NewUser returns a user reference with a known ID.
func NewUser(id int64, display string) User {
	return User{ID: &id, Display: display}
}

// Equal reports whether u and o refer to the same user.
func (u User) Equal(o User) bool {
	if u.ID == nil || o.ID == nil {
		return u.ID == nil && o.ID == nil
	}
	return *u.ID == *o.ID
}

func (u User) String() string { return u.Display }
