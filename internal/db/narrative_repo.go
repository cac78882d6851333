package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pathsynch/internal/types"
)

// NarrativeRepository provides data access for the narratives and
// slide_decks tables. Decks belong to a narrative; deleting a narrative
// removes its decks first so no orphaned decks survive.
type NarrativeRepository struct {
	db DBTX
}

// NewNarrativeRepository creates a new NarrativeRepository backed by the
// given database connection (pool or transaction).
func NewNarrativeRepository(db DBTX) *NarrativeRepository {
	return &NarrativeRepository{db: db}
}

const narrativeColumns = `n.id, n.user_id, n.inputs, n.content, n.status, n.issues,
	n.tokens_used, n.cost_cents, n.model, n.created_at, n.updated_at`

func scanNarrative(row pgx.Row) (*types.Narrative, error) {
	var n types.Narrative
	var issues []string
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Inputs,
		&n.Content,
		&n.Status,
		&issues,
		&n.TokensUsed,
		&n.CostCents,
		&n.Model,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Issues = issues
	return &n, nil
}

// Create inserts a new narrative.
func (r *NarrativeRepository) Create(ctx context.Context, n *types.Narrative) error {
	issues := n.Issues
	if issues == nil {
		issues = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO narratives (
			id, user_id, inputs, content, status, issues,
			tokens_used, cost_cents, model, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()), NOW())`,
		n.ID,
		n.UserID,
		n.Inputs,
		n.Content,
		string(n.Status),
		issues,
		n.TokensUsed,
		n.CostCents,
		n.Model,
		nilIfZeroTime(n.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create narrative", err)
	}
	return nil
}

// GetByID retrieves a narrative by id without owner scoping. The handler
// compares the owner and returns a permission error for cross-user access.
func (r *NarrativeRepository) GetByID(ctx context.Context, id string) (*types.Narrative, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+narrativeColumns+` FROM narratives n WHERE n.id = $1`,
		id,
	)

	n, err := scanNarrative(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNarrative, "narrative not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve narrative", err)
	}
	return n, nil
}

// UpdateContent replaces the generated content after a regeneration:
// content, validation outcome, and token/cost accounting. Inputs are
// immutable once created.
func (r *NarrativeRepository) UpdateContent(ctx context.Context, n *types.Narrative) error {
	issues := n.Issues
	if issues == nil {
		issues = []string{}
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE narratives SET
			content = $2,
			status = $3,
			issues = $4,
			tokens_used = $5,
			cost_cents = $6,
			model = $7,
			updated_at = NOW()
		 WHERE id = $1`,
		n.ID,
		n.Content,
		string(n.Status),
		issues,
		n.TokensUsed,
		n.CostCents,
		n.Model,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update narrative", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNarrative, "narrative not found", nil)
	}
	return nil
}

// Delete removes a narrative and its slide decks. The deck delete runs
// first; callers wanting the pair to be atomic pass a transaction as the
// repository's DBTX.
func (r *NarrativeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM slide_decks WHERE narrative_id = $1`,
		id,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete slide decks for narrative", err)
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM narratives WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete narrative", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNarrative, "narrative not found", nil)
	}
	return nil
}

// ListNarrativesParams defines pagination parameters for narrative listings.
type ListNarrativesParams struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

// ListByUser retrieves a user's narratives ordered by created_at DESC with
// cursor-based pagination.
func (r *NarrativeRepository) ListByUser(ctx context.Context, userID string, params ListNarrativesParams) ([]*types.Narrative, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	conditions := []string{"n.user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationQueryParam,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("n.created_at < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT %s FROM narratives n WHERE %s ORDER BY n.created_at DESC LIMIT $%d`,
		narrativeColumns,
		strings.Join(conditions, " AND "),
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list narratives", err)
	}
	defer rows.Close()

	var results []*types.Narrative
	for rows.Next() {
		n, scanErr := scanNarrative(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan narrative row", scanErr)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating narrative rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}

// --- Slide decks ---

const deckColumns = `d.id, d.narrative_id, d.user_id, d.theme, d.slides, d.created_at`

func scanDeck(row pgx.Row) (*types.SlideDeck, error) {
	var d types.SlideDeck
	var slides types.SlideList
	err := row.Scan(
		&d.ID,
		&d.NarrativeID,
		&d.UserID,
		&d.Theme,
		&slides,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Slides = []types.Slide(slides)
	return &d, nil
}

// CreateDeck inserts a new slide deck for a narrative.
func (r *NarrativeRepository) CreateDeck(ctx context.Context, d *types.SlideDeck) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO slide_decks (id, narrative_id, user_id, theme, slides, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		d.ID,
		d.NarrativeID,
		d.UserID,
		d.Theme,
		types.SlideList(d.Slides),
		nilIfZeroTime(d.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create slide deck", err)
	}
	return nil
}

// GetDeck retrieves a slide deck by id without owner scoping.
func (r *NarrativeRepository) GetDeck(ctx context.Context, id string) (*types.SlideDeck, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+deckColumns+` FROM slide_decks d WHERE d.id = $1`,
		id,
	)

	d, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDeck, "slide deck not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve slide deck", err)
	}
	return d, nil
}

// ListDecksByNarrative retrieves all decks generated from one narrative,
// newest first.
func (r *NarrativeRepository) ListDecksByNarrative(ctx context.Context, narrativeID string) ([]*types.SlideDeck, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deckColumns+`
		 FROM slide_decks d
		 WHERE d.narrative_id = $1
		 ORDER BY d.created_at DESC`,
		narrativeID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list slide decks", err)
	}
	defer rows.Close()

	var results []*types.SlideDeck
	for rows.Next() {
		d, scanErr := scanDeck(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan slide deck row", scanErr)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating slide deck rows", err)
	}

	return results, nil
}
