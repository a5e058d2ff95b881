package account

import (
	"time"

	"custodian/internal/docstore"
)

// Doctype tags user account documents in the shared store.
const Doctype = docstore.DoctypeUser

// Roles an account can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account statuses. The legal transitions between them live in Service.
const (
	StatusPending  = docstore.StatusPending
	StatusApproved = docstore.StatusApproved
	StatusActive   = docstore.StatusActive
	StatusBlocked  = docstore.StatusBlocked
)

// Field names of a user document. Fixed by the store contract.
const (
	FieldEmail      = "email"
	FieldUsername   = "username"
	FieldPassword   = "password"
	FieldRole       = "role"
	FieldStatus     = "status"
	FieldActivation = "activation"
	FieldServices   = "services"
	FieldTeams      = "teams"
	FieldCreated    = "created"
	FieldName       = "name"
	FieldDepartment = "department"
	FieldUniversity = "university"
	FieldCountry    = "country"
)

// Keys inside the activation sub-document.
const (
	activationCodeKey     = "code"
	activationDeadlineKey = "deadline"
)

// Activation is the outstanding code gating an approved account's activation
// or a password reset.
type Activation struct {
	Code     string
	Deadline time.Time
}

// User is the typed view of a user document. ID and Rev address the backing
// document; PasswordHash is the salted hash, never plaintext.
type User struct {
	ID  string
	Rev string

	Email        string
	Username     string
	Name         string
	Department   string
	University   string
	Country      string
	PasswordHash string
	Role         string
	Status       string
	Activation   *Activation
	Services     []string
	Teams        []string
	Created      time.Time
}

// IsAdmin reports whether the account holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// userFromDocument builds the typed view of a stored user document.
func userFromDocument(d docstore.Document) User {
	u := User{
		ID:           d.ID,
		Rev:          d.Rev,
		Email:        d.String(FieldEmail),
		Username:     d.String(FieldUsername),
		Name:         d.String(FieldName),
		Department:   d.String(FieldDepartment),
		University:   d.String(FieldUniversity),
		Country:      d.String(FieldCountry),
		PasswordHash: d.String(FieldPassword),
		Role:         d.String(FieldRole),
		Status:       d.String(FieldStatus),
		Services:     d.StringSlice(FieldServices),
		Teams:        d.StringSlice(FieldTeams),
	}
	if created, err := docstore.ParseTimestamp(d.String(FieldCreated)); err == nil {
		u.Created = created
	}
	if act := activationFromDocument(d); act != nil {
		u.Activation = act
	}
	return u
}

func activationFromDocument(d docstore.Document) *Activation {
	m := d.Map(FieldActivation)
	if m == nil {
		return nil
	}
	code, _ := m[activationCodeKey].(string)
	raw, _ := m[activationDeadlineKey].(string)
	deadline, err := docstore.ParseTimestamp(raw)
	if err != nil {
		return &Activation{Code: code}
	}
	return &Activation{Code: code, Deadline: deadline}
}
