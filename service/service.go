// Package service wires signing, storage, the key registry, revocation and
// trust evaluation into the operations an application exposes: issue,
// verify, revoke, look up, list and record access.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmcleod/certichain/canonical"
	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
	"github.com/jmcleod/certichain/keyregistry"
	"github.com/jmcleod/certichain/trust"
)

var (
	// ErrForbidden is returned when the actor does not own the certificate.
	ErrForbidden = errors.New("forbidden")

	// ErrRegistration is returned when the certificate was stored but its
	// public key could not be registered.
	ErrRegistration = errors.New("key registration failed")
)

// AnonymousActor records access by unauthenticated verifiers.
const AnonymousActor = "anonymous"

// IssueRequest holds the fields supplied when issuing a certificate.
type IssueRequest struct {
	CertUUID      string `json:"cert_uuid,omitempty"`
	RecipientName string `json:"recipient_name"`
	CourseName    string `json:"course_name"`
	IssuerName    string `json:"issuer_name"`
	IssueDate     string `json:"issue_date,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Stats summarises an owner's certificates.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Revoked int `json:"revoked"`
}

// Service is the certificate application service.
type Service struct {
	store     certificate.Store
	registry  *keyregistry.Registry
	signer    *certificate.Signer
	revoker   *certificate.RevocationManager
	evaluator *trust.Evaluator
	logger    *slog.Logger
	now       func() time.Time
	baseURL   string
}

// Option configures a Service.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	now     func() time.Time
	strict  bool
	baseURL string
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStrictKeyRegistry requires verification keys to come from the
// registry.
func WithStrictKeyRegistry(strict bool) Option {
	return func(s *settings) {
		s.strict = strict
	}
}

// WithBaseURL sets the base of verification links.
func WithBaseURL(baseURL string) Option {
	return func(s *settings) {
		s.baseURL = baseURL
	}
}

// New assembles a Service.
func New(store certificate.Store, registry *keyregistry.Registry, kc custody.KeyCustody, opts ...Option) *Service {
	st := settings{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&st)
	}

	certOpts := []certificate.Option{certificate.WithLogger(st.logger), certificate.WithClock(st.now)}
	trustOpts := []trust.Option{trust.WithLogger(st.logger), trust.WithClock(st.now)}
	if registry != nil {
		trustOpts = append(trustOpts, trust.WithKeySource(registry))
	}
	if st.strict {
		trustOpts = append(trustOpts, trust.WithStrictKeyRegistry())
	}

	return &Service{
		store:     store,
		registry:  registry,
		signer:    certificate.NewSigner(kc, certOpts...),
		revoker:   certificate.NewRevocationManager(store, certOpts...),
		evaluator: trust.NewEvaluator(store, certificate.NewVerifier(kc, certOpts...), trustOpts...),
		logger:    st.logger.With("component", "service"),
		now:       st.now,
		baseURL:   st.baseURL,
	}
}

// NewSession starts a request session for actorID using the service clock
// and logger.
func (s *Service) NewSession(actorID string) (*certificate.Session, error) {
	return certificate.NewSession(actorID,
		certificate.WithSessionClock(s.now),
		certificate.WithSessionLogger(s.logger),
	)
}

// Issue signs, stores and registers a new certificate owned by the session
// actor. The issue date defaults to today (UTC).
func (s *Service) Issue(ctx context.Context, sess *certificate.Session, req IssueRequest) (*certificate.Record, error) {
	if sess == nil || sess.Closed() {
		return nil, certificate.ErrSessionClosed
	}
	issueDate := strings.TrimSpace(req.IssueDate)
	if issueDate == "" {
		issueDate = sess.Now().Format(certificate.DateLayout)
	}
	if err := certificate.ValidateIssueDate(issueDate); err != nil {
		return nil, err
	}

	iss, err := s.signer.Issue(ctx, sess, canonical.Payload{
		CertUUID:      req.CertUUID,
		RecipientName: req.RecipientName,
		CourseName:    req.CourseName,
		IssuerName:    req.IssuerName,
		IssueDate:     issueDate,
	})
	if err != nil {
		return nil, err
	}
	rec, err := certificate.NewRecord(iss, sess.ActorID, req.Notes, sess.Now())
	if err != nil {
		return nil, err
	}
	rec, err = s.store.Create(ctx, rec)
	if err != nil {
		return nil, err
	}

	if s.registry != nil {
		if _, err := s.registry.Register(ctx, keyregistry.Key{
			Fingerprint: iss.Fingerprint,
			PublicKey:   iss.PublicKeyPEM,
			Algorithm:   iss.Algorithm,
			Issuer:      sess.ActorID,
			CertUUID:    iss.CertUUID,
			CreatedAt:   rec.CreatedAt,
		}); err != nil {
			return rec, fmt.Errorf("%w for %s: %w", ErrRegistration, rec.CertUUID, err)
		}
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "certificate issued",
		slog.String("cert_uuid", rec.CertUUID),
		slog.String("id", rec.ID),
		slog.String("owner", rec.CreatedBy),
		slog.String("fingerprint", rec.Fingerprint),
	)
	return rec, nil
}

// Verify returns a fresh verdict for certUUID.
func (s *Service) Verify(ctx context.Context, certUUID string) trust.Result {
	return s.evaluator.Evaluate(ctx, strings.TrimSpace(certUUID))
}

// Revoke revokes a certificate owned by the session actor.
func (s *Service) Revoke(ctx context.Context, sess *certificate.Session, certUUID, reason string) (*certificate.Record, error) {
	if sess == nil || sess.Closed() {
		return nil, certificate.ErrSessionClosed
	}
	rec, err := s.store.GetByUUID(ctx, certUUID)
	if err != nil {
		return nil, err
	}
	if rec.CreatedBy != sess.ActorID {
		return nil, fmt.Errorf("revoke %s: %w", certUUID, ErrForbidden)
	}
	return s.revoker.Revoke(ctx, certUUID, sess.ActorID, reason)
}

// Get returns the record for certUUID.
func (s *Service) Get(ctx context.Context, certUUID string) (*certificate.Record, error) {
	return s.store.GetByUUID(ctx, strings.TrimSpace(certUUID))
}

// List returns the owner's certificates, newest first, optionally filtered
// by status. An empty status returns every certificate.
func (s *Service) List(ctx context.Context, ownerID string, status certificate.Status) ([]*certificate.Record, error) {
	records, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return records, nil
	}
	filtered := records[:0]
	for _, rec := range records {
		if rec.Status == status {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

// Stats counts the owner's certificates by status.
func (s *Service) Stats(ctx context.Context, ownerID string) (Stats, error) {
	records, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, rec := range records {
		st.Total++
		if rec.Revoked() {
			st.Revoked++
		} else {
			st.Active++
		}
	}
	return st, nil
}

// RecordAccess appends a "verified" or "viewed" event to the certificate's
// audit log. An empty actor is recorded as AnonymousActor.
func (s *Service) RecordAccess(ctx context.Context, certUUID string, action certificate.Action, actorID string) (*certificate.Record, error) {
	if action != certificate.ActionVerified && action != certificate.ActionViewed {
		return nil, fmt.Errorf("%w: %q is not an access action", certificate.ErrInvalidAction, action)
	}
	if actorID == "" {
		actorID = AnonymousActor
	}
	return certificate.Mutate(ctx, s.store, certUUID, certificate.DefaultMaxAttempts, func(rec *certificate.Record) error {
		return rec.AppendAudit(certificate.AuditEvent{
			Action:    action,
			Timestamp: s.now(),
			UserID:    actorID,
		})
	})
}

// VerificationURL returns the public verification link for certUUID.
func (s *Service) VerificationURL(certUUID string) string {
	return certificate.VerificationURL(s.baseURL, certUUID)
}
