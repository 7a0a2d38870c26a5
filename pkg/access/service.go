package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehealthwave/platform/pkg/common/logger"
	"github.com/ehealthwave/platform/pkg/common/models"
	"github.com/ehealthwave/platform/pkg/ledger"
	"github.com/ehealthwave/platform/pkg/notify"
	"github.com/ehealthwave/platform/pkg/observability/metrics"
	"github.com/ehealthwave/platform/pkg/records"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	errEmptySubject  = errors.New("subject id required")
	errEmptySecret   = errors.New("secret required")
	errEmptyRedeemer = errors.New("redeemer id required")
	errInvalidWindow = errors.New("validity window must be positive")
	errInvalidLevel  = errors.New("access level must be read or write")
	errInvalidScope  = errors.New("data scope must be full, limited or emergency")
	errNoContacts    = errors.New("at least one emergency contact required")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// maxSecretAttempts bounds the generate-until-unique loop. Collisions
// are near-impossible at these alphabet sizes but the contract does not
// assume it.
const maxSecretAttempts = 10

// Service owns the grant lifecycle: issuance, redemption, validation
// and revocation. Every state transition appends to the audit ledger.
type Service struct {
	store           Store
	ledger          *ledger.Ledger
	records         records.Store
	sender          notify.Sender
	limiter         AttemptLimiter
	secrets         SecretSource
	catalog         notify.Catalog
	defaultContacts []string
	nowFunc         func() time.Time
}

func NewService(store Store, ldg *ledger.Ledger, recordStore records.Store, sender notify.Sender, limiter AttemptLimiter) *Service {
	return &Service{
		store:   store,
		ledger:  ldg,
		records: recordStore,
		sender:  sender,
		limiter: limiter,
		secrets: CryptoSource{},
		catalog: notify.DefaultCatalog(),
		nowFunc: time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowFunc = now
	return s
}

func (s *Service) WithSecretSource(src SecretSource) *Service {
	s.secrets = src
	return s
}

func (s *Service) WithTemplates(catalog notify.Catalog) *Service {
	s.catalog = catalog
	return s
}

// WithDefaultContacts sets the fallback recipients for emergency SMS
// when the caller supplies none (e.g. a subject's registered contacts).
func (s *Service) WithDefaultContacts(contacts []string) *Service {
	s.defaultContacts = contacts
	return s
}

func (s *Service) now() time.Time {
	return s.nowFunc().UTC()
}

// IssueEmergencyPin creates a single-use 6-digit PIN grant. The PIN is
// returned to the subject for manual sharing; the system never
// transmits it to the redeemer.
func (s *Service) IssueEmergencyPin(ctx context.Context, subjectID string, validity time.Duration, loc *Location) (*Grant, error) {
	if subjectID == "" {
		return nil, ValidationError{reason: errEmptySubject}
	}
	if validity <= 0 {
		return nil, ValidationError{reason: errInvalidWindow}
	}

	now := s.now()
	pin, err := s.uniqueSecret(ctx, now, s.secrets.EmergencyPIN)
	if err != nil {
		return nil, err
	}

	if loc != nil {
		loc.Timestamp = now
	}
	grant := &Grant{
		ID:        uuid.New().String(),
		Kind:      KindEmergencyPin,
		SubjectID: subjectID,
		Secret:    pin,
		CreatedAt: now,
		ExpiresAt: now.Add(validity),
		IsActive:  true,
		Location:  loc,
	}

	if err := s.store.Put(ctx, grant); err != nil {
		return nil, fmt.Errorf("storing emergency pin grant: %w", err)
	}

	payload := map[string]interface{}{
		"type":       EventPinGenerated,
		"subject_id": subjectID,
		"expires_at": grant.ExpiresAt,
	}
	if loc != nil {
		payload["location"] = map[string]interface{}{
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
		}
	}
	if _, err := s.ledger.Append(ctx, payload); err != nil {
		return nil, err
	}

	metrics.IncPinsIssued()
	logger.Log.WithFields(map[string]interface{}{
		"subject_id": subjectID,
		"expires_at": grant.ExpiresAt,
	}).Info("Emergency PIN issued")

	return grant, nil
}

// IssueSharingToken creates a reusable 12-character sharing token
// scoped by access level and data scope.
func (s *Service) IssueSharingToken(ctx context.Context, subjectID string, validity time.Duration, accessLevel, dataScope string) (*Grant, error) {
	if subjectID == "" {
		return nil, ValidationError{reason: errEmptySubject}
	}
	if validity <= 0 {
		return nil, ValidationError{reason: errInvalidWindow}
	}
	if accessLevel != AccessLevelRead && accessLevel != AccessLevelWrite {
		return nil, ValidationError{reason: errInvalidLevel}
	}
	if dataScope != ScopeFull && dataScope != ScopeLimited && dataScope != ScopeEmergency {
		return nil, ValidationError{reason: errInvalidScope}
	}

	now := s.now()
	token, err := s.uniqueSecret(ctx, now, s.secrets.SharingToken)
	if err != nil {
		return nil, err
	}

	grant := &Grant{
		ID:          uuid.New().String(),
		Kind:        KindSharingToken,
		SubjectID:   subjectID,
		Secret:      token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(validity),
		IsActive:    true,
		AccessLevel: accessLevel,
		DataScope:   dataScope,
	}

	if err := s.store.Put(ctx, grant); err != nil {
		return nil, fmt.Errorf("storing sharing token grant: %w", err)
	}

	if _, err := s.ledger.Append(ctx, map[string]interface{}{
		"type":         EventTokenGenerated,
		"subject_id":   subjectID,
		"expires_at":   grant.ExpiresAt,
		"access_level": accessLevel,
		"data_scope":   dataScope,
	}); err != nil {
		return nil, err
	}

	metrics.IncTokensIssued()
	return grant, nil
}

// uniqueSecret generates until the secret does not collide with a
// currently active one.
func (s *Service) uniqueSecret(ctx context.Context, now time.Time, generate func() (string, error)) (string, error) {
	for attempt := 0; attempt < maxSecretAttempts; attempt++ {
		secret, err := generate()
		if err != nil {
			return "", err
		}
		existing, err := s.store.GetBySecret(ctx, secret)
		if errors.Is(err, ErrNotFound) {
			return secret, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking secret uniqueness: %w", err)
		}
		if !existing.IsActive || existing.Expired(now) {
			return secret, nil
		}
	}
	return "", errors.New("could not generate a unique secret")
}

// RedeemEmergencyPin is the trust-decision point for emergency access.
// Lookup and mark-used happen as one atomic step in the store, so two
// concurrent redeemers cannot both spend one PIN.
func (s *Service) RedeemEmergencyPin(ctx context.Context, pin, subjectID, redeemerID string) (*RedeemResult, error) {
	if subjectID == "" {
		return nil, ValidationError{reason: errEmptySubject}
	}
	if pin == "" {
		return nil, ValidationError{reason: errEmptySecret}
	}
	if redeemerID == "" {
		return nil, ValidationError{reason: errEmptyRedeemer}
	}

	if s.limiter.Blocked(ctx, subjectID, redeemerID) {
		metrics.IncRedemptionsDenied()
		return &RedeemResult{Granted: false, Reason: ReasonRateLimited}, nil
	}

	now := s.now()
	grant, err := s.store.Redeem(ctx, pin, subjectID, KindEmergencyPin, redeemerID, now)
	if errors.Is(err, ErrNotFound) {
		s.limiter.RecordFailure(ctx, subjectID, redeemerID)
		metrics.IncRedemptionsDenied()
		return &RedeemResult{Granted: false, Reason: ReasonInvalidOrExpired}, nil
	}
	if err != nil {
		return nil, err
	}

	s.limiter.Reset(ctx, subjectID, redeemerID)

	// Records first: the ledger entry asserts access was delivered, so
	// it is written only once the payload is in hand.
	recs, err := s.records.RecordsFor(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("fetching subject records: %w", err)
	}

	if _, err := s.ledger.Append(ctx, map[string]interface{}{
		"type":        EventAccessGranted,
		"subject_id":  subjectID,
		"provider_id": redeemerID,
	}); err != nil {
		return nil, err
	}

	metrics.IncRedemptionsGranted()
	s.notifyBestEffort(ctx, models.Notification{
		ID:        uuid.New().String(),
		Type:      notify.TypeAccessGranted,
		SubjectID: subjectID,
		Language:  "en",
		Timestamp: now,
		Metadata: map[string]interface{}{
			"provider_id": redeemerID,
			"expires_at":  grant.ExpiresAt,
		},
	}, map[string]string{
		"accessType": "EMERGENCY",
		"patientId":  subjectID,
		"timestamp":  now.Format(time.RFC3339),
		"expiration": grant.ExpiresAt.Format(time.RFC3339),
		"purpose":    "emergency treatment",
	})

	logger.Log.WithFields(map[string]interface{}{
		"subject_id":  subjectID,
		"provider_id": redeemerID,
	}).Info("Emergency access granted")

	out := make([]map[string]interface{}, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]interface{}{
			"id":          rec.ID,
			"type":        rec.Type,
			"timestamp":   rec.Timestamp,
			"data":        rec.Data,
			"hospital_id": rec.HospitalID,
		})
	}
	return &RedeemResult{Granted: true, Records: out}, nil
}

// ValidateSharingToken is a stateless validity check used for status
// polling. It neither consumes the token nor writes to the ledger.
func (s *Service) ValidateSharingToken(ctx context.Context, secret, subjectID string) (bool, error) {
	if subjectID == "" {
		return false, ValidationError{reason: errEmptySubject}
	}
	if secret == "" {
		return false, ValidationError{reason: errEmptySecret}
	}

	grant, err := s.store.GetBySecret(ctx, secret)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return grant.Kind == KindSharingToken &&
		grant.SubjectID == subjectID &&
		grant.IsActive &&
		!grant.Expired(s.now()), nil
}

// UseToken stamps a sharing token's used_by/used_at without
// deactivating it. Tokens stay usable until expiry or revocation; only
// PINs are single-use.
func (s *Service) UseToken(ctx context.Context, secret, redeemerID string) (bool, error) {
	if secret == "" {
		return false, ValidationError{reason: errEmptySecret}
	}
	if redeemerID == "" {
		return false, ValidationError{reason: errEmptyRedeemer}
	}

	grant, err := s.store.GetBySecret(ctx, secret)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if grant.Kind != KindSharingToken {
		return false, nil
	}

	grant, err = s.store.MarkUsed(ctx, secret, redeemerID, s.now())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := s.ledger.Append(ctx, map[string]interface{}{
		"type":        EventTokenUsed,
		"subject_id":  grant.SubjectID,
		"provider_id": redeemerID,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Status reports a grant's state without consuming it. Precedence:
// not_found, then expired, then inactive, then active.
func (s *Service) Status(ctx context.Context, secret string) (*StatusResult, error) {
	if secret == "" {
		return nil, ValidationError{reason: errEmptySecret}
	}

	grant, err := s.store.GetBySecret(ctx, secret)
	if errors.Is(err, ErrNotFound) {
		return &StatusResult{Status: StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if grant.Expired(s.now()) {
		return &StatusResult{Status: StatusExpired}, nil
	}
	if !grant.IsActive {
		return &StatusResult{Status: StatusInactive}, nil
	}
	expiresAt := grant.ExpiresAt
	return &StatusResult{Status: StatusActive, ExpiresAt: &expiresAt}, nil
}

// RevokeGrant deactivates the grant carrying the given secret. False
// means no grant was found; that is an outcome, not an error.
func (s *Service) RevokeGrant(ctx context.Context, secret string) (bool, error) {
	if secret == "" {
		return false, ValidationError{reason: errEmptySecret}
	}

	grant, err := s.store.Deactivate(ctx, secret)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := s.ledger.Append(ctx, map[string]interface{}{
		"type":       EventGrantRevoked,
		"subject_id": grant.SubjectID,
		"kind":       grant.Kind,
	}); err != nil {
		return false, err
	}

	metrics.IncGrantsRevoked()
	return true, nil
}

// RevokeEmergencyPins deactivates every active PIN for the subject and
// returns how many changed. Zero means nothing was active.
func (s *Service) RevokeEmergencyPins(ctx context.Context, subjectID string) (int, error) {
	return s.revokeAll(ctx, subjectID, KindEmergencyPin, EventPinsRevoked)
}

// RevokeAllTokens deactivates every active sharing token for the
// subject.
func (s *Service) RevokeAllTokens(ctx context.Context, subjectID string) (int, error) {
	return s.revokeAll(ctx, subjectID, KindSharingToken, EventTokensRevoked)
}

func (s *Service) revokeAll(ctx context.Context, subjectID, kind, eventType string) (int, error) {
	if subjectID == "" {
		return 0, ValidationError{reason: errEmptySubject}
	}

	count, err := s.store.DeactivateAllForSubject(ctx, subjectID, kind, s.now())
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	if _, err := s.ledger.Append(ctx, map[string]interface{}{
		"type":       eventType,
		"subject_id": subjectID,
		"count":      count,
	}); err != nil {
		return count, err
	}

	metrics.AddGrantsRevoked(count)
	logger.Log.WithFields(map[string]interface{}{
		"subject_id": subjectID,
		"kind":       kind,
		"count":      count,
	}).Info("Grants revoked")
	return count, nil
}

// ActiveEmergencyAccess lists the subject's live PIN grants with the
// secret redacted, for display on the patient's own device.
func (s *Service) ActiveEmergencyAccess(ctx context.Context, subjectID string) ([]Grant, error) {
	if subjectID == "" {
		return nil, ValidationError{reason: errEmptySubject}
	}

	grants, err := s.store.ListActiveBySubject(ctx, subjectID, s.now())
	if err != nil {
		return nil, err
	}

	var out []Grant
	for _, g := range grants {
		if g.Kind == KindEmergencyPin && !g.Spent() {
			out = append(out, g.Redacted())
		}
	}
	return out, nil
}

// ActiveTokens lists the subject's live sharing tokens.
func (s *Service) ActiveTokens(ctx context.Context, subjectID string) ([]Grant, error) {
	if subjectID == "" {
		return nil, ValidationError{reason: errEmptySubject}
	}

	grants, err := s.store.ListActiveBySubject(ctx, subjectID, s.now())
	if err != nil {
		return nil, err
	}

	var out []Grant
	for _, g := range grants {
		if g.Kind == KindSharingToken {
			out = append(out, g)
		}
	}
	return out, nil
}

// SendEmergencySMS records the emergency contacts on the grant and
// hands an SMS off for delivery. False when no grant matches the
// pin/subject pair.
func (s *Service) SendEmergencySMS(ctx context.Context, subjectID, pin string, contacts []string) (bool, error) {
	if subjectID == "" {
		return false, ValidationError{reason: errEmptySubject}
	}
	if pin == "" {
		return false, ValidationError{reason: errEmptySecret}
	}
	if len(contacts) == 0 {
		contacts = s.defaultContacts
	}
	if len(contacts) == 0 {
		return false, ValidationError{reason: errNoContacts}
	}

	grant, err := s.store.GetBySecret(ctx, pin)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if grant.Kind != KindEmergencyPin || grant.SubjectID != subjectID {
		return false, nil
	}

	grant.EmergencyContacts = datatypes.JSONSlice[string](contacts)
	grant.SMSSent = true
	if err := s.store.Update(ctx, grant); err != nil {
		return false, err
	}

	if _, err := s.ledger.Append(ctx, map[string]interface{}{
		"type":       EventSMSSent,
		"subject_id": subjectID,
		"contacts":   contacts,
	}); err != nil {
		return false, err
	}

	now := s.now()
	message, renderErr := s.catalog.Render(notify.TypeSMS, "en", map[string]string{
		"patientId":  subjectID,
		"pin":        pin,
		"expiration": grant.ExpiresAt.Format(time.RFC3339),
	})
	if renderErr != nil {
		logger.Log.WithError(renderErr).Warn("failed to render emergency SMS")
		return true, nil
	}
	for _, contact := range contacts {
		s.sendBestEffort(ctx, models.Notification{
			ID:          uuid.New().String(),
			Type:        notify.TypeSMS,
			SubjectID:   subjectID,
			PhoneNumber: contact,
			Message:     message,
			Language:    "en",
			Timestamp:   now,
		})
	}
	return true, nil
}

// NotifyProviders flags the subject's first eligible PIN grant as
// notified and raises an emergency alert. False when no active,
// unused, un-notified grant exists.
func (s *Service) NotifyProviders(ctx context.Context, subjectID string, details map[string]interface{}) (bool, error) {
	if subjectID == "" {
		return false, ValidationError{reason: errEmptySubject}
	}

	now := s.now()
	grants, err := s.store.ListActiveBySubject(ctx, subjectID, now)
	if err != nil {
		return false, err
	}

	for _, g := range grants {
		if g.Kind != KindEmergencyPin || g.Spent() || g.NotificationSent {
			continue
		}
		g.NotificationSent = true
		if err := s.store.Update(ctx, &g); err != nil {
			return false, err
		}

		if _, err := s.ledger.Append(ctx, map[string]interface{}{
			"type":       EventNotificationSent,
			"subject_id": subjectID,
			"details":    details,
		}); err != nil {
			return false, err
		}

		s.notifyBestEffort(ctx, models.Notification{
			ID:        uuid.New().String(),
			Type:      notify.TypeEmergencyAlert,
			SubjectID: subjectID,
			Language:  "en",
			Timestamp: now,
			Metadata:  details,
		}, map[string]string{
			"patientId": subjectID,
			"timestamp": now.Format(time.RFC3339),
		})
		return true, nil
	}
	return false, nil
}

// UpdateLocation refreshes the location snapshot on a PIN grant so
// responders see where the emergency is. False when no grant matches.
func (s *Service) UpdateLocation(ctx context.Context, subjectID, pin string, loc Location) (bool, error) {
	if subjectID == "" {
		return false, ValidationError{reason: errEmptySubject}
	}
	if pin == "" {
		return false, ValidationError{reason: errEmptySecret}
	}

	grant, err := s.store.GetBySecret(ctx, pin)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if grant.Kind != KindEmergencyPin || grant.SubjectID != subjectID {
		return false, nil
	}

	loc.Timestamp = s.now()
	grant.Location = &loc
	if err := s.store.Update(ctx, grant); err != nil {
		return false, err
	}

	if _, err := s.ledger.Append(ctx, map[string]interface{}{
		"type":       EventLocationUpdated,
		"subject_id": subjectID,
		"location": map[string]interface{}{
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
		},
	}); err != nil {
		return false, err
	}
	return true, nil
}

// notifyBestEffort renders a template and sends; delivery problems are
// logged and never fail the calling operation.
func (s *Service) notifyBestEffort(ctx context.Context, n models.Notification, vars map[string]string) {
	message, err := s.catalog.Render(n.Type, n.Language, vars)
	if err != nil {
		logger.Log.WithError(err).WithField("type", n.Type).Warn("failed to render notification")
		return
	}
	n.Message = message
	s.sendBestEffort(ctx, n)
}

func (s *Service) sendBestEffort(ctx context.Context, n models.Notification) {
	if s.sender == nil {
		return
	}
	if err := s.sender.Send(ctx, n); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"type":       n.Type,
			"subject_id": n.SubjectID,
		}).Warn("failed to send notification")
	}
}
