package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"signal-store/apperrors"
)

const (
	TableRatings       = "ratings"
	TablePriceTargets  = "price_targets"
	TableMetrics       = "metrics"
	TableEntities      = "entities"
	TableRelationships = "relationships"
)

// Tables lists every structured table in migration order.
var Tables = []string{TableEntities, TableRelationships, TableRatings, TablePriceTargets, TableMetrics}

// Signal is a fact persisted in the structured store. Every signal carries a
// source document id and an explicit confidence.
type Signal interface {
	TableName() string
	// NaturalKey lists the columns that identify the fact for upserts.
	NaturalKey() []string
	// UpdatableColumns are overwritten when an upsert hits an existing key.
	UpdatableColumns() []string
	SourceID() string
	Normalize()
	check() error
}

var (
	periodPattern = regexp.MustCompile(`^(Q[1-4]-\d{4}|H[12]-\d{4}|FY\d{4}|TTM)$`)
	tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,15}$`)
	validate      = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("rating_value", func(fl validator.FieldLevel) bool {
		return RatingValue(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("metric_type", func(fl validator.FieldLevel) bool {
		return MetricType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("entity_type", func(fl validator.FieldLevel) bool {
		return EntityType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("relationship_type", func(fl validator.FieldLevel) bool {
		return RelationshipType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		return periodPattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate normalizes s in place and checks it against the write contract.
// Failures are *apperrors.ValidationError.
func Validate(s Signal) error {
	if s == nil {
		return apperrors.Validation("", "", "nil record")
	}
	s.Normalize()
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fromFieldError(s.TableName(), fieldErrs[0])
		}
		return apperrors.Validation(s.TableName(), "", err.Error())
	}
	return s.check()
}

func fromFieldError(table string, fe validator.FieldError) *apperrors.ValidationError {
	field := fe.Field()
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "gte", "lte":
		reason = "must be within [0.0, 1.0]"
	case "gt":
		reason = "must be positive"
	case "rating_value", "metric_type", "entity_type", "relationship_type":
		reason = "unrecognized value " + quote(fe.Value())
	case "period":
		reason = "unrecognized period " + quote(fe.Value())
	case "max":
		reason = "exceeds max length " + fe.Param()
	default:
		reason = "failed " + fe.Tag()
	}
	return apperrors.Validation(table, field, reason)
}

func quote(v interface{}) string {
	return fmt.Sprintf("%q", fmt.Sprint(v))
}

func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(t), "$"))
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func checkTicker(table, ticker string) error {
	if !tickerPattern.MatchString(ticker) {
		return apperrors.Validation(table, "ticker", "malformed ticker "+quote(ticker))
	}
	return nil
}

func requireTimestamp(table string, t time.Time) error {
	if t.IsZero() {
		return apperrors.Validation(table, "timestamp", "is required")
	}
	return nil
}

// Float returns a pointer to v. Confidence is a pointer so that a missing
// value can be told apart from an explicit 0.0.
func Float(v float64) *float64 { return &v }
