package account

import (
	"context"
	"fmt"
	"strings"

	"custodian/internal/docstore"
	dErrors "custodian/pkg/domain-errors"
)

// NewSpec returns the user doctype's statically registered field table: one
// check/convert pair per validated field, resolved once at construction, plus
// the defaults every new account starts with.
func NewSpec(bcryptCost int) docstore.DoctypeSpec {
	return docstore.DoctypeSpec{
		Doctype: Doctype,
		Initialize: func(s *docstore.Saver) {
			s.SetDefault(FieldStatus, StatusPending)
			s.SetDefault(FieldServices, []string{})
			s.SetDefault(FieldTeams, []string{})
			s.SetDefault(FieldCreated, docstore.Timestamp(s.Now()))
		},
		Fields: map[string]docstore.FieldRule{
			FieldEmail: {
				Check:   checkEmail,
				Convert: convertEmail,
			},
			FieldUsername: {
				Check: checkUsername,
			},
			FieldPassword: {
				Check: func(_ context.Context, _ *docstore.Saver, value any) error {
					password, ok := value.(string)
					if !ok {
						return dErrors.New(dErrors.CodeInvalidInput, "password must be a string")
					}
					return CheckPasswordQuality(password)
				},
				Convert: func(value any) (any, error) {
					return HashPassword(value.(string), bcryptCost)
				},
			},
			FieldStatus: {
				Check: checkEnum(FieldStatus, StatusPending, StatusApproved, StatusActive, StatusBlocked),
			},
			FieldRole: {
				Check: checkEnum(FieldRole, RoleUser, RoleAdmin),
			},
		},
	}
}

// checkEmail validates format and uniqueness. Staging the document's own
// current email is always allowed (no-op changes never conflict).
func checkEmail(ctx context.Context, s *docstore.Saver, value any) error {
	email, ok := value.(string)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "email must be a string")
	}
	if email == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "email must be a non-empty value")
	}
	email = strings.ToLower(email)
	if current, _ := s.Original(FieldEmail); current == email {
		return nil
	}
	if strings.Contains(email, "/") {
		return dErrors.New(dErrors.CodeInvalidInput, "slash '/' disallowed in email")
	}
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" || strings.Contains(domain, "@") {
		return dErrors.New(dErrors.CodeInvalidInput, "at-sign '@' not used correctly in email")
	}
	if parts := strings.Split(domain, "."); len(parts) < 2 || parts[0] == "" || parts[len(parts)-1] == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid domain name part in email")
	}
	rows, err := s.Store().Query(ctx, docstore.ViewUserEmail, email, false)
	if err != nil {
		return fmt.Errorf("check email uniqueness: %w", err)
	}
	if len(rows) > 0 {
		return dErrors.New(dErrors.CodeConflict, "email already in use")
	}
	return nil
}

func convertEmail(value any) (any, error) {
	return strings.ToLower(value.(string)), nil
}

// checkUsername validates the optional username: no separators that would
// collide with email addressing, and unique across accounts.
func checkUsername(ctx context.Context, s *docstore.Saver, value any) error {
	username, ok := value.(string)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "username must be a string")
	}
	if username == "" {
		return nil
	}
	if current, _ := s.Original(FieldUsername); current == username {
		return nil
	}
	if strings.Contains(username, "/") {
		return dErrors.New(dErrors.CodeInvalidInput, "slash '/' disallowed in username")
	}
	if strings.Contains(username, "@") {
		return dErrors.New(dErrors.CodeInvalidInput, "at-sign '@' disallowed in username")
	}
	rows, err := s.Store().Query(ctx, docstore.ViewUserUsername, username, false)
	if err != nil {
		return fmt.Errorf("check username uniqueness: %w", err)
	}
	if len(rows) > 0 {
		return dErrors.New(dErrors.CodeConflict, "username already in use")
	}
	return nil
}

func checkEnum(field string, allowed ...string) func(context.Context, *docstore.Saver, any) error {
	return func(_ context.Context, _ *docstore.Saver, value any) error {
		v, ok := value.(string)
		if !ok {
			return dErrors.Newf(dErrors.CodeInvalidInput, "%s must be a string", field)
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s value %q", field, v)
	}
}
