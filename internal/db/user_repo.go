package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pathsynch/internal/types"
)

// UserRepository provides data access for the users table. Users double as
// the billing anchor: the webhook processor projects subscription state onto
// the user row, and the plan gate reads the plan from here.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
// Used consistently across all query methods to avoid column drift.
const userColumns = `u.id, u.email, u.business_name, u.password_hash, u.plan,
	u.subscription_status, u.stripe_customer_id, u.stripe_subscription_id,
	u.current_period_start, u.current_period_end,
	u.created_at, u.updated_at, u.last_login_at`

// scanPlan decodes the plan column into a normalized PlanTier. The column is
// JSONB and two shapes exist in production data: a plain JSON string
// ("growth") written by current code, and a legacy object ({"tier":"growth"})
// written before the billing rework. Both decode here; nothing above the
// repository ever sees the legacy shape. Unknown or unreadable values map to
// the lowest tier.
func scanPlan(raw []byte) types.PlanTier {
	if len(raw) == 0 {
		return types.PlanStarter
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return types.NormalizePlanTier(s)
	}

	var legacy struct {
		Tier string `json:"tier"`
	}
	if err := json.Unmarshal(raw, &legacy); err == nil && legacy.Tier != "" {
		return types.NormalizePlanTier(legacy.Tier)
	}

	// Rows migrated from a TEXT column may hold the bare word unquoted.
	return types.NormalizePlanTier(strings.Trim(string(raw), `" `))
}

// planValue encodes a PlanTier for the JSONB plan column. Always writes the
// plain JSON string shape; the legacy object shape is read-only.
func planValue(plan types.PlanTier) []byte {
	raw, err := json.Marshal(plan)
	if err != nil {
		return []byte(`"starter"`)
	}
	return raw
}

// scanUser scans a single user row into a types.User struct.
// The columns must match the order defined in userColumns.
// Uses nullable scan targets for columns that may be NULL in the database.
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var (
		planRaw        []byte
		passwordHash   *string
		subStatus      *string
		customerID     *string
		subscriptionID *string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.BusinessName,
		&passwordHash,
		&planRaw,
		&subStatus,
		&customerID,
		&subscriptionID,
		&u.CurrentPeriodStart,
		&u.CurrentPeriodEnd,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	u.Plan = scanPlan(planRaw)
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if subStatus != nil {
		u.SubscriptionStatus = types.SubscriptionStatus(*subStatus)
	}
	if customerID != nil {
		u.StripeCustomerID = *customerID
	}
	if subscriptionID != nil {
		u.StripeSubscriptionID = *subscriptionID
	}
	return &u, nil
}

// Create inserts a new user. The caller must set ID, Email, BusinessName,
// PasswordHash, and Plan. Returns ErrCodeConflictEmail if a user with the
// same email already exists.
func (r *UserRepository) Create(ctx context.Context, user *types.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, business_name, password_hash, plan, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), NOW())`,
		user.ID,
		user.Email,
		user.BusinessName,
		nilIfEmpty(user.PasswordHash),
		planValue(user.Plan),
		nilIfZeroTime(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "an account with this email already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID. Returns ErrCodeNotFoundUser if absent.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`,
		id,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address. Returns ErrCodeNotFoundUser
// if absent; the auth service translates that to a credentials error so the
// login response never reveals whether the account exists.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.email = $1`,
		email,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by email", err)
	}
	return u, nil
}

// GetByStripeCustomerID resolves a user from a payment-platform customer id.
// Used by the webhook processor when event metadata carries no userId.
func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.stripe_customer_id = $1`,
		customerID,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no user for customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by customer id", err)
	}
	return u, nil
}

// UpdateLastLogin updates the last_login_at timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last login", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// SetStripeCustomerID records the payment-platform customer id after the
// first checkout session is created for the user.
func (r *UserRepository) SetStripeCustomerID(ctx context.Context, userID string, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $1, updated_at = NOW() WHERE id = $2`,
		customerID,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set customer id", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// ApplyBillingState projects subscription state onto the user row. Written
// only by the billing event processor; period timestamps may be nil when the
// event does not carry them, in which case the stored values are preserved.
func (r *UserRepository) ApplyBillingState(
	ctx context.Context,
	userID string,
	plan types.PlanTier,
	status types.SubscriptionStatus,
	subscriptionID string,
	periodStart, periodEnd *time.Time,
) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET
			plan = $1,
			subscription_status = $2,
			stripe_subscription_id = COALESCE($3, stripe_subscription_id),
			current_period_start = COALESCE($4, current_period_start),
			current_period_end = COALESCE($5, current_period_end),
			updated_at = NOW()
		 WHERE id = $6`,
		planValue(plan),
		string(status),
		nilIfEmpty(subscriptionID),
		periodStart,
		periodEnd,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply billing state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// UpdateSubscriptionStatus changes only the subscription status, leaving the
// plan untouched. Used for invoice.paid confirmations and payment failures.
func (r *UserRepository) UpdateSubscriptionStatus(ctx context.Context, userID string, status types.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET subscription_status = $1, updated_at = NOW() WHERE id = $2`,
		string(status),
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// SetPlan overrides the plan directly. Admin-only path; subscription state
// is not touched.
func (r *UserRepository) SetPlan(ctx context.Context, userID string, plan types.PlanTier) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET plan = $1, updated_at = NOW() WHERE id = $2`,
		planValue(plan),
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// ListUsersParams defines filtering and pagination for the admin user
// listing. An empty Plan means all tiers.
type ListUsersParams struct {
	Plan   types.PlanTier `json:"plan"`
	Limit  int            `json:"limit"`
	Cursor string         `json:"cursor"`
}

// List retrieves users ordered by created_at DESC with cursor-based
// pagination. Uses the limit+1 fetch strategy to determine HasMore without
// a separate COUNT query.
func (r *UserRepository) List(ctx context.Context, params ListUsersParams) ([]*types.User, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var conditions []string
	var args []any
	argIdx := 1

	if params.Plan != "" {
		conditions = append(conditions, fmt.Sprintf("u.plan = $%d", argIdx))
		args = append(args, params.Plan)
		argIdx++
	}

	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationQueryParam,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("u.created_at < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM users u %s ORDER BY u.created_at DESC LIMIT $%d`,
		userColumns,
		whereClause,
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	defer rows.Close()

	var results []*types.User
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", scanErr)
		}
		results = append(results, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}
