package models

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"signal-store/apperrors"
)

var entityNamespace = uuid.MustParse("6f1c1f7e-3c1d-5b8e-9a51-2f0d5e8c4a10")

// Entity is a named thing seen in research text. EntityID is derived from the
// normalized name and type, so re-ingesting the same entity keeps its id.
type Entity struct {
	EntityID                  string     `json:"entity_id" gorm:"primaryKey;size:36"`
	EntityType                EntityType `json:"entity_type" gorm:"size:16;not null;index:ix_entities_type_name,priority:1" validate:"required,entity_type"`
	DisplayName               string     `json:"display_name" gorm:"size:256;not null" validate:"required,max=256"`
	NormalizedName            string     `json:"-" gorm:"size:256;not null;index:ix_entities_type_name,priority:2"`
	Confidence                *float64   `json:"confidence" gorm:"not null" validate:"required,gte=0,lte=1"`
	FirstSeenSourceDocumentID string     `json:"first_seen_source_document_id" gorm:"size:128;not null" validate:"required,max=128"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

func (Entity) TableName() string { return TableEntities }

func (Entity) NaturalKey() []string { return []string{"entity_id"} }

// UpdatableColumns leaves first_seen_source_document_id untouched.
func (Entity) UpdatableColumns() []string {
	return []string{"display_name", "confidence", "updated_at"}
}

func (e *Entity) SourceID() string { return e.FirstSeenSourceDocumentID }

func (e *Entity) Normalize() {
	e.EntityType = EntityType(strings.ToLower(strings.TrimSpace(string(e.EntityType))))
	e.DisplayName = strings.Join(strings.Fields(e.DisplayName), " ")
	e.FirstSeenSourceDocumentID = strings.TrimSpace(e.FirstSeenSourceDocumentID)
	e.NormalizedName = NormalizeEntityName(e.EntityType, e.DisplayName)
	if e.DisplayName != "" && e.EntityType.Valid() {
		e.EntityID = EntityID(e.EntityType, e.DisplayName)
	}
}

func (e *Entity) check() error {
	if e.NormalizedName == "" {
		return apperrors.Validation(TableEntities, "display_name", "normalizes to empty")
	}
	return nil
}

// EntityID returns the stable id for an entity of type t named name.
func EntityID(t EntityType, name string) string {
	t = EntityType(strings.ToLower(strings.TrimSpace(string(t))))
	key := string(t) + "\x00" + NormalizeEntityName(t, name)
	return uuid.NewSHA1(entityNamespace, []byte(key)).String()
}

var corporateSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "corp": {}, "corporation": {}, "co": {}, "company": {},
	"ltd": {}, "limited": {}, "llc": {}, "plc": {}, "sa": {}, "ag": {}, "nv": {},
	"holdings": {}, "group": {},
}

// NormalizeEntityName lower-cases, strips punctuation and, for companies and
// firms, trailing corporate suffixes ("NVIDIA Corp." == "Nvidia Corporation").
func NormalizeEntityName(t EntityType, name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
	if t == EntityCompany || t == EntityFirm {
		for len(words) > 1 {
			if _, ok := corporateSuffixes[words[len(words)-1]]; !ok {
				break
			}
			words = words[:len(words)-1]
		}
	}
	return strings.Join(words, " ")
}

// Relationship is a directed, typed edge between two entities. Several edges
// of different types may join the same pair.
type Relationship struct {
	ID               uint             `json:"-" gorm:"primaryKey"`
	SourceEntityID   string           `json:"source_entity_id" gorm:"size:36;not null;uniqueIndex:ux_relationships_natural,priority:1;index:ix_relationships_source,priority:1" validate:"required"`
	TargetEntityID   string           `json:"target_entity_id" gorm:"size:36;not null;uniqueIndex:ux_relationships_natural,priority:2;index:ix_relationships_target" validate:"required"`
	RelationshipType RelationshipType `json:"relationship_type" gorm:"size:32;not null;uniqueIndex:ux_relationships_natural,priority:3;index:ix_relationships_source,priority:2" validate:"required,relationship_type"`
	SourceDocumentID string           `json:"source_document_id" gorm:"size:128;not null;uniqueIndex:ux_relationships_natural,priority:4" validate:"required,max=128"`
	Timestamp        time.Time        `json:"timestamp" gorm:"not null"`
	Confidence       *float64         `json:"confidence" gorm:"not null" validate:"required,gte=0,lte=1"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Relationship) TableName() string { return TableRelationships }

func (Relationship) NaturalKey() []string {
	return []string{"source_entity_id", "target_entity_id", "relationship_type", "source_document_id"}
}

func (Relationship) UpdatableColumns() []string {
	return []string{"timestamp", "confidence", "updated_at"}
}

func (r *Relationship) SourceID() string { return r.SourceDocumentID }

func (r *Relationship) Normalize() {
	r.SourceEntityID = strings.TrimSpace(r.SourceEntityID)
	r.TargetEntityID = strings.TrimSpace(r.TargetEntityID)
	r.RelationshipType = RelationshipType(strings.ToLower(strings.TrimSpace(string(r.RelationshipType))))
	r.SourceDocumentID = strings.TrimSpace(r.SourceDocumentID)
	r.Timestamp = normalizeTime(r.Timestamp)
}

// check rejects self-loops unless the edge is a circular_reference.
func (r *Relationship) check() error {
	if r.SourceEntityID == r.TargetEntityID && r.RelationshipType != RelCircularReference {
		return apperrors.Validation(TableRelationships, "target_entity_id", "self-loop requires relationship_type circular_reference")
	}
	return requireTimestamp(TableRelationships, r.Timestamp)
}
