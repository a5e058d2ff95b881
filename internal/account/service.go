package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"custodian/internal/audit"
	"custodian/internal/docstore"
	"custodian/internal/platform/metrics"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
)

// errActivation is returned verbatim for every activation failure (unknown
// account, wrong code, expired deadline) so a caller cannot tell which case
// occurred.
var errActivation = dErrors.New(dErrors.CodeInvalidInput, "no such user, or invalid or expired activation code")

// Service drives the account lifecycle: every mutation goes through a Saver
// so it is validated, revision-checked, and audited.
type Service struct {
	store docstore.Store
	log   *audit.Log
	spec  docstore.DoctypeSpec

	activationPeriod time.Duration
	clock            docstore.Clock
	logger           *log.Logger
	metrics          *metrics.Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock docstore.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics wires the prometheus counters.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService builds the account lifecycle service. activationPeriod bounds
// how long an activation or reset code stays valid; bcryptCost is passed to
// the password field rule.
func NewService(store docstore.Store, auditLog *audit.Log, activationPeriod time.Duration, bcryptCost int, opts ...ServiceOption) *Service {
	s := &Service{
		store:            store,
		log:              auditLog,
		spec:             NewSpec(bcryptCost),
		activationPeriod: activationPeriod,
		clock:            time.Now,
		logger:           log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) saverOpts(operator string) []docstore.Option {
	opts := []docstore.Option{
		docstore.WithClock(s.clock),
		docstore.WithLogger(s.logger),
	}
	if operator != "" {
		opts = append(opts, docstore.WithOperator(operator))
	}
	if s.metrics != nil {
		opts = append(opts, docstore.WithMetrics(s.metrics))
	}
	return opts
}

// recorder returns the audit log as the saver's recorder; a nil *audit.Log
// disables auditing without a typed-nil interface.
func (s *Service) recorder() docstore.Recorder {
	if s.log == nil {
		return nil
	}
	return s.log
}

// CreateParams describes a new account. Email is required; everything else
// is optional. Role defaults to RoleUser.
type CreateParams struct {
	Email      string
	Username   string
	Name       string
	Department string
	University string
	Country    string
	Role       string
	Services   []string
	Teams      []string
}

// Create registers a new account in status pending.
func (s *Service) Create(ctx context.Context, p CreateParams, operator string) (User, error) {
	saver := docstore.New(s.store, s.recorder(), s.spec, s.saverOpts(operator)...)
	if err := saver.Set(ctx, FieldEmail, p.Email); err != nil {
		return User{}, err
	}
	role := p.Role
	if role == "" {
		role = RoleUser
	}
	if err := saver.Set(ctx, FieldRole, role); err != nil {
		return User{}, err
	}
	if p.Username != "" {
		if err := saver.Set(ctx, FieldUsername, p.Username); err != nil {
			return User{}, err
		}
	}
	for field, value := range map[string]string{
		FieldName:       p.Name,
		FieldDepartment: p.Department,
		FieldUniversity: p.University,
		FieldCountry:    p.Country,
	} {
		if value == "" {
			continue
		}
		if err := saver.Set(ctx, field, value); err != nil {
			return User{}, err
		}
	}
	if p.Services != nil {
		if err := saver.Set(ctx, FieldServices, p.Services); err != nil {
			return User{}, err
		}
	}
	if p.Teams != nil {
		if err := saver.Set(ctx, FieldTeams, p.Teams); err != nil {
			return User{}, err
		}
	}
	doc, err := saver.Commit(ctx)
	if err != nil {
		return User{}, err
	}
	return userFromDocument(doc), nil
}

// editableFields is the whitelist Update accepts. Status transitions have
// their own entry points and are rejected here.
var editableFields = map[string]struct{}{
	FieldUsername:   {},
	FieldName:       {},
	FieldDepartment: {},
	FieldUniversity: {},
	FieldCountry:    {},
	FieldRole:       {},
	FieldServices:   {},
	FieldTeams:      {},
}

// Update edits profile fields of the account given by name (email or
// username).
func (s *Service) Update(ctx context.Context, name string, fields map[string]any, operator string) (User, error) {
	for field := range fields {
		if _, ok := editableFields[field]; !ok {
			return User{}, dErrors.Newf(dErrors.CodeInvalidInput, "field %q is not editable", field)
		}
	}
	doc, err := s.getDocument(ctx, name)
	if err != nil {
		return User{}, err
	}
	saver, err := docstore.Edit(s.store, s.recorder(), s.spec, doc, s.saverOpts(operator)...)
	if err != nil {
		return User{}, err
	}
	for field, value := range fields {
		if err := saver.Set(ctx, field, value); err != nil {
			return User{}, err
		}
	}
	saved, err := saver.Commit(ctx)
	if err != nil {
		return User{}, err
	}
	return userFromDocument(saved), nil
}

// Approve moves a pending account to approved and issues a fresh activation
// code with a deadline. The returned Activation is for the mail layer; the
// code is never logged.
func (s *Service) Approve(ctx context.Context, name, operator string) (User, Activation, error) {
	doc, err := s.getDocument(ctx, name)
	if err != nil {
		return User{}, Activation{}, err
	}
	if doc.String(FieldStatus) != StatusPending {
		return User{}, Activation{}, dErrors.New(dErrors.CodeConflict, "account not pending")
	}
	return s.issueActivation(ctx, doc, StatusApproved, false, operator)
}

// ResetPassword issues a new activation code for an approved or active
// account and replaces the password with a throwaway random one.
func (s *Service) ResetPassword(ctx context.Context, name, operator string) (User, Activation, error) {
	doc, err := s.getDocument(ctx, name)
	if err != nil {
		return User{}, Activation{}, err
	}
	switch doc.String(FieldStatus) {
	case StatusApproved, StatusActive:
	default:
		return User{}, Activation{}, dErrors.New(dErrors.CodeConflict, "account status not active")
	}
	return s.issueActivation(ctx, doc, StatusApproved, true, operator)
}

func (s *Service) issueActivation(ctx context.Context, doc docstore.Document, status string, scramblePassword bool, operator string) (User, Activation, error) {
	saver, err := docstore.Edit(s.store, s.recorder(), s.spec, doc, s.saverOpts(operator)...)
	if err != nil {
		return User{}, Activation{}, err
	}
	activation := Activation{
		Code:     GenerateCode(),
		Deadline: s.clock().Add(s.activationPeriod),
	}
	if err := saver.Set(ctx, FieldActivation, map[string]any{
		activationCodeKey:     activation.Code,
		activationDeadlineKey: docstore.Timestamp(activation.Deadline),
	}); err != nil {
		return User{}, Activation{}, err
	}
	if scramblePassword {
		if err := saver.Set(ctx, FieldPassword, GenerateCode()); err != nil {
			return User{}, Activation{}, err
		}
	}
	if err := saver.Set(ctx, FieldStatus, status); err != nil {
		return User{}, Activation{}, err
	}
	saved, err := saver.Commit(ctx)
	if err != nil {
		return User{}, Activation{}, err
	}
	return userFromDocument(saved), activation, nil
}

// Activate consumes a valid, unexpired activation code: the account becomes
// active with the supplied password, and the activation is removed in the
// same commit. Every failure mode except a weak password yields the same
// generic error.
func (s *Service) Activate(ctx context.Context, name, code, password string) (User, error) {
	if code == "" {
		return User{}, errActivation
	}
	if err := CheckPasswordQuality(password); err != nil {
		return User{}, err
	}
	doc, err := s.getDocument(ctx, name)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return User{}, errActivation
		}
		return User{}, err
	}
	activation := activationFromDocument(doc)
	if activation == nil {
		return User{}, errActivation
	}
	if subtle.ConstantTimeCompare([]byte(activation.Code), []byte(code)) != 1 {
		return User{}, errActivation
	}
	if activation.Deadline.Before(s.clock()) {
		return User{}, errActivation
	}

	saver, err := docstore.Edit(s.store, s.recorder(), s.spec, doc, s.saverOpts(doc.String(FieldEmail))...)
	if err != nil {
		return User{}, err
	}
	saver.Unset(FieldActivation)
	if err := saver.Set(ctx, FieldPassword, password); err != nil {
		return User{}, err
	}
	if err := saver.Set(ctx, FieldStatus, StatusActive); err != nil {
		return User{}, err
	}
	saved, err := saver.Commit(ctx)
	if err != nil {
		return User{}, err
	}
	return userFromDocument(saved), nil
}

// Block retires an account. Admin accounts cannot be blocked; blocking an
// already-blocked account is a no-op.
func (s *Service) Block(ctx context.Context, name, operator string) (User, error) {
	doc, err := s.getDocument(ctx, name)
	if err != nil {
		return User{}, err
	}
	if doc.String(FieldStatus) == StatusBlocked {
		return userFromDocument(doc), nil
	}
	if doc.String(FieldRole) == RoleAdmin {
		return User{}, dErrors.New(dErrors.CodeConflict, "cannot block admin account")
	}
	return s.setStatus(ctx, doc, StatusBlocked, operator)
}

// Unblock reinstates an account directly to active, no activation code
// involved. Unblocking an already-active account is a no-op: no new
// revision, no new log entry.
func (s *Service) Unblock(ctx context.Context, name, operator string) (User, error) {
	doc, err := s.getDocument(ctx, name)
	if err != nil {
		return User{}, err
	}
	if doc.String(FieldStatus) == StatusActive {
		return userFromDocument(doc), nil
	}
	return s.setStatus(ctx, doc, StatusActive, operator)
}

func (s *Service) setStatus(ctx context.Context, doc docstore.Document, status, operator string) (User, error) {
	saver, err := docstore.Edit(s.store, s.recorder(), s.spec, doc, s.saverOpts(operator)...)
	if err != nil {
		return User{}, err
	}
	if err := saver.Set(ctx, FieldStatus, status); err != nil {
		return User{}, err
	}
	saved, err := saver.Commit(ctx)
	if err != nil {
		return User{}, err
	}
	return userFromDocument(saved), nil
}

// Get returns the account given by email or username.
func (s *Service) Get(ctx context.Context, name string) (User, error) {
	doc, err := s.getDocument(ctx, name)
	if err != nil {
		return User{}, err
	}
	return userFromDocument(doc), nil
}

// getDocument resolves name (email when it contains '@', username otherwise)
// to exactly one stored user document.
func (s *Service) getDocument(ctx context.Context, name string) (docstore.Document, error) {
	view := docstore.ViewUserUsername
	if strings.Contains(name, "@") {
		view = docstore.ViewUserEmail
		name = strings.ToLower(name)
	}
	rows, err := s.store.Query(ctx, view, name, true)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return docstore.Document{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable")
		}
		return docstore.Document{}, fmt.Errorf("look up account %q: %w", name, err)
	}
	if len(rows) != 1 || rows[0].Doc == nil {
		return docstore.Document{}, dErrors.Newf(dErrors.CodeNotFound, "no such user account %q", name)
	}
	return *rows[0].Doc, nil
}

// List returns every account, ordered by email.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.list(ctx, docstore.ViewUserEmail)
}

// ListPending returns accounts awaiting approval.
func (s *Service) ListPending(ctx context.Context) ([]User, error) {
	return s.list(ctx, docstore.ViewUserPending)
}

// ListBlocked returns retired accounts.
func (s *Service) ListBlocked(ctx context.Context) ([]User, error) {
	return s.list(ctx, docstore.ViewUserBlocked)
}

func (s *Service) list(ctx context.Context, view string) ([]User, error) {
	rows, err := s.store.Query(ctx, view, "", true)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	users := make([]User, 0, len(rows))
	for _, row := range rows {
		if row.Doc == nil {
			continue
		}
		users = append(users, userFromDocument(*row.Doc))
	}
	return users, nil
}

// Logs returns the audit trail of the account's document, newest first.
func (s *Service) Logs(ctx context.Context, docID string) ([]audit.Entry, error) {
	if s.log == nil {
		return nil, nil
	}
	return s.log.List(ctx, docID)
}
