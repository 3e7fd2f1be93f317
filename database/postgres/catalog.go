package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Question struct {
	ID         int64     `json:"id"`
	Question   string    `json:"question"`
	Context    string    `json:"context"`
	Category   string    `json:"category"`
	Difficulty string    `json:"difficulty"`
	IsActive   bool      `json:"is_active"`
	PersonaIDs []int64   `json:"persona_ids,omitempty"`
	Personas   []Persona `json:"personas,omitempty"`
}

type Persona struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Specialty          string          `json:"specialty"`
	CommunicationStyle json.RawMessage `json:"communication_style"`
	Priorities         json.RawMessage `json:"priorities"`
	CommonChallenges   json.RawMessage `json:"common_challenges"`
	Quote              string          `json:"quote"`
	Questions          []Question      `json:"questions,omitempty"`
}

type CategoryCount struct {
	Category      string `json:"category"`
	QuestionCount int    `json:"question_count"`
}

var ErrCatalogEntryNotFound = errors.New("catalog entry not found")

type ListQuestionsProps struct {
	Category   string
	Difficulty string
	PersonaID  int64
}

func (d *Database) ListQuestions(ctx context.Context, args ListQuestionsProps) ([]Question, error) {
	tracer := otel.Tracer("postgres/ListQuestions")
	ctx, span := tracer.Start(ctx, "ListQuestions")
	defer span.End()

	query := `SELECT id, question, context, category, difficulty, is_active FROM questions WHERE is_active = TRUE`
	params := []interface{}{}
	paramCount := 1

	if args.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", paramCount)
		params = append(params, args.Category)
		paramCount++
	}
	if args.Difficulty != "" {
		query += fmt.Sprintf(" AND difficulty = $%d", paramCount)
		params = append(params, args.Difficulty)
		paramCount++
	}
	if args.PersonaID != 0 {
		query += fmt.Sprintf(" AND id IN (SELECT question_id FROM question_personas WHERE persona_id = $%d)", paramCount)
		params = append(params, args.PersonaID)
		paramCount++
	}
	query += " ORDER BY id"

	rows, err := d.conn.QueryContext(ctx, query, params...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not list questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Question, &q.Context, &q.Category, &q.Difficulty, &q.IsActive); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan question row: %w", err)
		}
		questions = append(questions, q)
	}

	return questions, rows.Err()
}

func (d *Database) GetQuestion(ctx context.Context, questionID int64) (*Question, error) {
	tracer := otel.Tracer("postgres/GetQuestion")
	ctx, span := tracer.Start(ctx, "GetQuestion")
	defer span.End()

	var q Question
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, question, context, category, difficulty, is_active FROM questions WHERE id = $1`,
		questionID,
	).Scan(&q.ID, &q.Question, &q.Context, &q.Category, &q.Difficulty, &q.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCatalogEntryNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not fetch question: %w", err)
	}

	rows, err := d.conn.QueryContext(ctx,
		`SELECT p.id, p.name, p.specialty, p.communication_style, p.priorities, p.common_challenges, p.quote
		 FROM personas p
		 JOIN question_personas qp ON p.id = qp.persona_id
		 WHERE qp.question_id = $1
		 ORDER BY p.id`,
		questionID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not fetch question personas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Persona
		if err := rows.Scan(&p.ID, &p.Name, &p.Specialty, &p.CommunicationStyle, &p.Priorities, &p.CommonChallenges, &p.Quote); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan persona row: %w", err)
		}
		q.Personas = append(q.Personas, p)
	}

	return &q, rows.Err()
}

func (d *Database) ListPersonas(ctx context.Context) ([]Persona, error) {
	tracer := otel.Tracer("postgres/ListPersonas")
	ctx, span := tracer.Start(ctx, "ListPersonas")
	defer span.End()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, name, specialty, communication_style, priorities, common_challenges, quote
		 FROM personas ORDER BY id`,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not list personas: %w", err)
	}
	defer rows.Close()

	personas := []Persona{}
	for rows.Next() {
		var p Persona
		if err := rows.Scan(&p.ID, &p.Name, &p.Specialty, &p.CommunicationStyle, &p.Priorities, &p.CommonChallenges, &p.Quote); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan persona row: %w", err)
		}
		personas = append(personas, p)
	}

	return personas, rows.Err()
}

func (d *Database) GetPersona(ctx context.Context, personaID int64) (*Persona, error) {
	tracer := otel.Tracer("postgres/GetPersona")
	ctx, span := tracer.Start(ctx, "GetPersona")
	defer span.End()

	var p Persona
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, name, specialty, communication_style, priorities, common_challenges, quote
		 FROM personas WHERE id = $1`,
		personaID,
	).Scan(&p.ID, &p.Name, &p.Specialty, &p.CommunicationStyle, &p.Priorities, &p.CommonChallenges, &p.Quote)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCatalogEntryNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not fetch persona: %w", err)
	}

	rows, err := d.conn.QueryContext(ctx,
		`SELECT q.id, q.question, q.context, q.category, q.difficulty, q.is_active
		 FROM questions q
		 JOIN question_personas qp ON q.id = qp.question_id
		 WHERE qp.persona_id = $1 AND q.is_active = TRUE
		 ORDER BY q.category, q.id`,
		personaID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not fetch persona questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Question, &q.Context, &q.Category, &q.Difficulty, &q.IsActive); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan question row: %w", err)
		}
		p.Questions = append(p.Questions, q)
	}

	return &p, rows.Err()
}

func (d *Database) ListCategories(ctx context.Context) ([]CategoryCount, error) {
	tracer := otel.Tracer("postgres/ListCategories")
	ctx, span := tracer.Start(ctx, "ListCategories")
	defer span.End()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM questions WHERE is_active = TRUE GROUP BY category ORDER BY category`,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not list categories: %w", err)
	}
	defer rows.Close()

	categories := []CategoryCount{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.QuestionCount); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan category row: %w", err)
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

// SeedCatalog loads personas and questions from the JSON files under dataDir
// when the corresponding tables are empty. This is the file-based fallback
// for fresh deployments without a provisioned catalog.
func (d *Database) SeedCatalog(ctx context.Context, dataDir string) error {
	tracer := otel.Tracer("postgres/SeedCatalog")
	ctx, span := tracer.Start(ctx, "SeedCatalog")
	defer span.End()

	span.SetAttributes(attribute.String("data.dir", dataDir))
	logger := d.logger.Logger(ctx)

	var personaCount int
	if err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM personas`).Scan(&personaCount); err != nil {
		span.RecordError(err)
		return fmt.Errorf("could not count personas: %w", err)
	}

	if personaCount == 0 {
		raw, err := os.ReadFile(filepath.Join(dataDir, "personas.json"))
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("could not read persona seed file: %w", err)
		}
		var personas []Persona
		if err := json.Unmarshal(raw, &personas); err != nil {
			span.RecordError(err)
			return fmt.Errorf("could not parse persona seed file: %w", err)
		}
		for _, p := range personas {
			_, err := d.conn.ExecContext(ctx,
				`INSERT INTO personas (id, name, specialty, communication_style, priorities, common_challenges, quote)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				p.ID, p.Name, p.Specialty, string(p.CommunicationStyle), string(p.Priorities), string(p.CommonChallenges), p.Quote,
			)
			if err != nil {
				span.RecordError(err)
				return fmt.Errorf("could not seed persona %q: %w", p.Name, err)
			}
		}
		// setval rejects a NULL max, so skip it when the seed file was empty.
		if len(personas) > 0 {
			if _, err := d.conn.ExecContext(ctx,
				`SELECT setval(pg_get_serial_sequence('personas', 'id'), (SELECT MAX(id) FROM personas))`,
			); err != nil {
				span.RecordError(err)
				return fmt.Errorf("could not advance persona sequence: %w", err)
			}
		}
		logger.Info("[Postgres] Seeded persona catalog from file", zap.Int("count", len(personas)))
	}

	var questionCount int
	if err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&questionCount); err != nil {
		span.RecordError(err)
		return fmt.Errorf("could not count questions: %w", err)
	}

	if questionCount == 0 {
		raw, err := os.ReadFile(filepath.Join(dataDir, "questions.json"))
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("could not read question seed file: %w", err)
		}
		var questions []Question
		if err := json.Unmarshal(raw, &questions); err != nil {
			span.RecordError(err)
			return fmt.Errorf("could not parse question seed file: %w", err)
		}
		for _, q := range questions {
			_, err := d.conn.ExecContext(ctx,
				`INSERT INTO questions (id, question, context, category, difficulty, is_active)
				 VALUES ($1, $2, $3, $4, $5, TRUE)`,
				q.ID, q.Question, q.Context, q.Category, q.Difficulty,
			)
			if err != nil {
				span.RecordError(err)
				return fmt.Errorf("could not seed question %d: %w", q.ID, err)
			}
			for _, personaID := range q.PersonaIDs {
				_, err := d.conn.ExecContext(ctx,
					`INSERT INTO question_personas (question_id, persona_id) VALUES ($1, $2)`,
					q.ID, personaID,
				)
				if err != nil {
					span.RecordError(err)
					return fmt.Errorf("could not link question %d to persona %d: %w", q.ID, personaID, err)
				}
			}
		}
		if len(questions) > 0 {
			if _, err := d.conn.ExecContext(ctx,
				`SELECT setval(pg_get_serial_sequence('questions', 'id'), (SELECT MAX(id) FROM questions))`,
			); err != nil {
				span.RecordError(err)
				return fmt.Errorf("could not advance question sequence: %w", err)
			}
		}
		logger.Info("[Postgres] Seeded question catalog from file", zap.Int("count", len(questions)))
	}

	return nil
}
