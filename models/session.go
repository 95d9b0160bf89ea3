package models

// Session identifies the caller of a core operation. It is built by the
// auth middleware from verified token claims and passed explicitly; no
// package holds ambient current-user state.
type Session struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
