package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry is what callers hand to the sink for one transition
type Entry struct {
	ActorID    uuid.UUID
	ActorOrgID uuid.UUID
	EntityType string
	EntityID   uuid.UUID
	Action     string
	Payload    map[string]any
}

// Sink records audit events. Record is fire-and-forget: it must never fail
// or block the primary state transition, so it returns nothing and logs
// failures internally.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// Reader exposes the audit trail per entity
type Reader interface {
	ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]Event, error)
}

// Service persists audit events via GORM
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an audit service
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

func (s *Service) Record(ctx context.Context, entry Entry) {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		payload = []byte("{}")
	}

	event := &Event{
		ID:         uuid.New(),
		ActorID:    entry.ActorID,
		ActorOrgID: entry.ActorOrgID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Payload:    payload,
		EventToken: eventToken(entry.EntityType, entry.EntityID, entry.Action, s.now()),
		CreatedAt:  s.now(),
	}

	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		s.logger.Warn("audit record failed",
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID.String()),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func (s *Service) ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return events, nil
}

// eventToken builds the opaque display token for an event. FNV is not an
// integrity mechanism; do not rely on it for tamper detection.
func eventToken(entityType string, entityID uuid.UUID, action string, at time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d", entityType, entityID, action, at.UnixNano())
	return fmt.Sprintf("%016x", h.Sum64())
}
