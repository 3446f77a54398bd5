package smartplaylist

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cadenza/internal/catalog"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// Compiler turns smart playlist criteria into executable track queries.
type Compiler struct {
	catalog *catalog.Catalog
	logger  *logrus.Logger
}

// New creates a smart playlist compiler over the given catalog.
func New(cat *catalog.Catalog, logger *logrus.Logger) *Compiler {
	return &Compiler{catalog: cat, logger: logger}
}

// Execute materializes the tracks matching the criteria, in its sort order,
// capped at its limit. Rules with unknown fields or unsupported conditions
// are dropped with a warning; the remaining rules still apply.
func (c *Compiler) Execute(ctx context.Context, criteria models.SmartPlaylistCriteria, cfg models.QueryConfig) ([]models.Track, error) {
	var tracks []models.Track
	err := c.catalog.Store().Read(ctx, func(tx *sql.Tx) error {
		query, args := c.buildQuery(tx, criteria, cfg)

		rows, err := tx.Query(query, args...)
		if err != nil {
			return fmt.Errorf("failed to execute smart playlist query: %w", err)
		}
		defer rows.Close()

		tracks, err = catalog.ScanTrackRows(rows)
		return err
	})
	return tracks, err
}

// Count returns the exact number of tracks Execute would return, including
// limit truncation.
func (c *Compiler) Count(ctx context.Context, criteria models.SmartPlaylistCriteria, cfg models.QueryConfig) (int, error) {
	var count int
	err := c.catalog.Store().Read(ctx, func(tx *sql.Tx) error {
		query, args := c.buildQuery(tx, criteria, cfg)

		if err := tx.QueryRow(
			"SELECT COUNT(*) FROM ("+query+")", args...).Scan(&count); err != nil {
			return fmt.Errorf("failed to count smart playlist tracks: %w", err)
		}
		return nil
	})
	return count, err
}

func (c *Compiler) buildQuery(tx *sql.Tx, criteria models.SmartPlaylistCriteria, cfg models.QueryConfig) (string, []interface{}) {
	var (
		predicates []string
		args       []interface{}
	)
	for _, rule := range criteria.Rules {
		predicate, ruleArgs, err := c.buildRule(tx, rule)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"field":     rule.Field,
				"condition": rule.Condition,
				"error":     err.Error(),
			}).Warn("Dropping smart playlist rule")
			continue
		}
		predicates = append(predicates, predicate)
		args = append(args, ruleArgs...)
	}

	joiner := " AND "
	if criteria.MatchType == models.MatchAny {
		joiner = " OR "
	}

	where := "1=1"
	if len(predicates) > 0 {
		where = "(" + strings.Join(predicates, joiner) + ")"
	}
	if cfg.HideDuplicates {
		where += " AND NOT t.is_duplicate"
	}

	query := "SELECT " + catalog.TrackColumns + " FROM tracks t WHERE " + where +
		" ORDER BY " + orderClause(criteria)
	if criteria.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", criteria.Limit)
	}
	return query, args
}

// orderClause maps sortBy to a column, pushing NULLs after real values in
// either direction. Falls back to insertion order for unknown sort fields.
func orderClause(criteria models.SmartPlaylistCriteria) string {
	column, ok := sortColumns[Field(criteria.SortBy)]
	if !ok {
		return "t.id"
	}

	direction := "ASC"
	if criteria.SortDir == models.SortDescending {
		direction = "DESC"
	}
	return fmt.Sprintf("%s IS NULL, %s %s, t.id", column, column, direction)
}

func (c *Compiler) buildRule(tx *sql.Tx, rule models.Rule) (string, []interface{}, error) {
	field, err := ParseField(rule.Field)
	if err != nil {
		return "", nil, err
	}

	column := fieldColumns[field]
	switch fieldKinds[field] {
	case kindBool:
		return buildBoolRule(column, rule)
	case kindNumeric:
		return buildNumericRule(column, rule)
	case kindDate:
		return buildDateRule(column, rule)
	case kindYear:
		return buildYearRule(column, rule)
	case kindPerson:
		return c.buildPersonRule(tx, field, column, rule)
	default:
		return buildStringRule(column, rule)
	}
}

func buildBoolRule(column string, rule models.Rule) (string, []interface{}, error) {
	if rule.Condition != models.ConditionEquals {
		return "", nil, fmt.Errorf("condition %q not supported for boolean field", rule.Condition)
	}
	value, err := strconv.ParseBool(rule.Value)
	if err != nil {
		return "", nil, fmt.Errorf("invalid boolean value %q: %w", rule.Value, err)
	}
	return column + " = ?", []interface{}{value}, nil
}

func buildNumericRule(column string, rule models.Rule) (string, []interface{}, error) {
	op, err := comparisonOperator(rule.Condition)
	if err != nil {
		return "", nil, err
	}
	value, err := strconv.ParseFloat(rule.Value, 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid numeric value %q: %w", rule.Value, err)
	}
	return fmt.Sprintf("%s %s ?", column, op), []interface{}{value}, nil
}

// buildDateRule handles the relative-window syntax "<N>days". greaterThan
// means "within the last N days"; lessThan means "older than that". Rows
// with a NULL date never match either way.
func buildDateRule(column string, rule models.Rule) (string, []interface{}, error) {
	days, err := parseRelativeDays(rule.Value)
	if err != nil {
		return "", nil, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	switch rule.Condition {
	case models.ConditionGreaterThan, models.ConditionGreaterOrEqual:
		return column + " >= ?", []interface{}{cutoff}, nil
	case models.ConditionLessThan, models.ConditionLessOrEqual:
		return column + " < ?", []interface{}{cutoff}, nil
	default:
		return "", nil, fmt.Errorf("condition %q not supported for date field", rule.Condition)
	}
}

// buildYearRule compares years lexicographically, which is correct because
// they are stored as fixed-width strings.
func buildYearRule(column string, rule models.Rule) (string, []interface{}, error) {
	op, err := comparisonOperator(rule.Condition)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s ?", column, op), []interface{}{rule.Value}, nil
}

func buildStringRule(column string, rule models.Rule) (string, []interface{}, error) {
	switch rule.Condition {
	case models.ConditionEquals:
		return "LOWER(" + column + ") = LOWER(?)", []interface{}{rule.Value}, nil
	case models.ConditionContains:
		return column + " LIKE ?", []interface{}{"%" + rule.Value + "%"}, nil
	case models.ConditionStartsWith:
		return column + " LIKE ?", []interface{}{rule.Value + "%"}, nil
	case models.ConditionEndsWith:
		return column + " LIKE ?", []interface{}{"%" + rule.Value}, nil
	default:
		return "", nil, fmt.Errorf("condition %q not supported for string field", rule.Condition)
	}
}

// buildPersonRule resolves equality against the normalized artists table so
// naming variants ("The Beatles" vs "Beatles, The") match the same rows.
// Pattern conditions and unresolved names fall back to the denormalized
// display column.
func (c *Compiler) buildPersonRule(tx *sql.Tx, field Field, column string, rule models.Rule) (string, []interface{}, error) {
	if rule.Condition != models.ConditionEquals {
		return buildStringRule(column, rule)
	}

	artistID, found, err := catalog.LookupArtistByNormalized(tx, catalog.NormalizeName(rule.Value))
	if err != nil {
		return "", nil, err
	}
	if !found {
		return buildStringRule(column, rule)
	}

	role := models.RoleArtist
	if field == FieldComposer {
		role = models.RoleComposer
	}
	return "t.id IN (SELECT track_id FROM track_artists WHERE artist_id = ? AND role = ?)",
		[]interface{}{artistID, string(role)}, nil
}

func comparisonOperator(condition string) (string, error) {
	switch condition {
	case models.ConditionEquals:
		return "=", nil
	case models.ConditionGreaterThan:
		return ">", nil
	case models.ConditionGreaterOrEqual:
		return ">=", nil
	case models.ConditionLessThan:
		return "<", nil
	case models.ConditionLessOrEqual:
		return "<=", nil
	default:
		return "", fmt.Errorf("condition %q is not a comparison", condition)
	}
}

func parseRelativeDays(value string) (int, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(value), "days")
	days, err := strconv.Atoi(strings.TrimSpace(trimmed))
	if err != nil || days < 0 {
		return 0, fmt.Errorf("invalid relative date %q, expected \"<N>days\"", value)
	}
	return days, nil
}
