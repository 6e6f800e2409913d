package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"signal-store/apperrors"
	"signal-store/models"
)

// FindEntity looks an entity up by type and any spelling of its name.
func (s *Store) FindEntity(ctx context.Context, entityType models.EntityType, name string) (*models.Entity, bool, error) {
	if !entityType.Valid() {
		return nil, false, apperrors.Validation(models.TableEntities, "entity_type", fmt.Sprintf("unrecognized value %q", entityType))
	}
	return s.EntityByID(ctx, models.EntityID(entityType, name))
}

func (s *Store) EntityByID(ctx context.Context, id string) (*models.Entity, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var e models.Entity
	err := s.db.WithContext(ctx).Where("entity_id = ?", id).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("entity %s: %w", id, err)
	}
	return &e, true, nil
}

// RelationshipsFrom returns outgoing edges of entityID, newest first. An empty
// relType returns edges of every type.
func (s *Store) RelationshipsFrom(ctx context.Context, entityID string, relType models.RelationshipType, limit int) ([]models.Relationship, error) {
	if entityID == "" {
		return nil, apperrors.Validation(models.TableRelationships, "source_entity_id", "is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := s.db.WithContext(ctx).Where("source_entity_id = ?", entityID)
	if relType != "" {
		q = q.Where("relationship_type = ?", relType)
	}

	out := []models.Relationship{}
	if err := q.Order(latestOrder).Limit(s.clampLimit(limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("relationships from %s: %w", entityID, err)
	}
	return out, nil
}
