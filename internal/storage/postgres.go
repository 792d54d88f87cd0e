package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"dealdesk/internal/domain"
)

var ErrDuplicateUsername = errors.New("username already exists")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, fullName, passwordHash string) (domain.User, error) {
	var u domain.User
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, full_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, full_name, password_hash, created_at
	`, username, fullName, passwordHash)
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.User{}, ErrDuplicateUsername
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username))
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, password_hash, created_at
		FROM users
		WHERE id = $1
	`, userID))
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, passwordHash)
	return err
}

func (s *PostgresStore) scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

const dealColumns = `
	id, user_id, title, type, COALESCE(description, ''), amount, status,
	insurance_type, coverage, property_type, location, make, model, year,
	ai_feedback, images, created_at, updated_at
`

func (s *PostgresStore) CreateDeal(ctx context.Context, d domain.Deal) (domain.Deal, error) {
	images, err := imagesJSON(d.Images)
	if err != nil {
		return domain.Deal{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO deals (
			user_id, title, type, description, amount, status,
			insurance_type, coverage, property_type, location, make, model, year, images
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb)
		RETURNING `+dealColumns, d.UserID, d.Title, d.Type, d.Description, d.Amount, domain.StatusPending,
		d.InsuranceType, d.Coverage, d.PropertyType, d.Location, d.Make, d.Model, d.Year, images)
	return scanDeal(row)
}

func (s *PostgresStore) GetDeal(ctx context.Context, dealID int64) (domain.Deal, error) {
	return scanDeal(s.db.QueryRowContext(ctx, `
		SELECT `+dealColumns+` FROM deals WHERE id = $1
	`, dealID))
}

func (s *PostgresStore) GetDealForUser(ctx context.Context, dealID, userID int64) (domain.Deal, error) {
	return scanDeal(s.db.QueryRowContext(ctx, `
		SELECT `+dealColumns+` FROM deals WHERE id = $1 AND user_id = $2
	`, dealID, userID))
}

func (s *PostgresStore) ListDealsByUser(ctx context.Context, userID int64) ([]domain.Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dealColumns+` FROM deals
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deals := make([]domain.Deal, 0)
	for rows.Next() {
		d, err := scanDealRows(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deals, nil
}

// UpdateDeal rewrites the editable fields of a deal the caller owns. Review
// fields (status, ai_feedback) are untouched here; only SaveReviewOutcome
// writes those.
func (s *PostgresStore) UpdateDeal(ctx context.Context, d domain.Deal) (domain.Deal, error) {
	images, err := imagesJSON(d.Images)
	if err != nil {
		return domain.Deal{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE deals SET
			title = $3, type = $4, description = $5, amount = $6,
			insurance_type = $7, coverage = $8, property_type = $9, location = $10,
			make = $11, model = $12, year = $13, images = $14::jsonb,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+dealColumns, d.ID, d.UserID, d.Title, d.Type, d.Description, d.Amount,
		d.InsuranceType, d.Coverage, d.PropertyType, d.Location, d.Make, d.Model, d.Year, images)
	return scanDeal(row)
}

func (s *PostgresStore) DeleteDeal(ctx context.Context, dealID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM deals WHERE id = $1 AND user_id = $2
	`, dealID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SaveReviewOutcome is the review workflow's single write: it sets status and
// ai_feedback together, so an approval always clears prior feedback.
func (s *PostgresStore) SaveReviewOutcome(ctx context.Context, dealID int64, status domain.DealStatus, feedback *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deals
		SET status = $2, ai_feedback = $3, updated_at = NOW()
		WHERE id = $1
	`, dealID, status, feedback)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) InsertReviewLog(ctx context.Context, dealID int64, rawVerdict string, status domain.DealStatus, feedback *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_log (deal_id, raw_verdict, status, feedback)
		VALUES ($1, $2, $3, $4)
	`, dealID, rawVerdict, status, feedback)
	return err
}

func (s *PostgresStore) ListReviewLog(ctx context.Context, dealID int64) ([]domain.ReviewLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, raw_verdict, status, feedback, created_at
		FROM review_log
		WHERE deal_id = $1
		ORDER BY created_at DESC
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ReviewLogEntry, 0)
	for rows.Next() {
		var e domain.ReviewLogEntry
		var feedback sql.NullString
		if err := rows.Scan(&e.ID, &e.DealID, &e.RawVerdict, &e.Status, &feedback, &e.CreatedAt); err != nil {
			return nil, err
		}
		if feedback.Valid {
			e.Feedback = &feedback.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PostgresStore) GetDealStats(ctx context.Context, userID int64) (domain.DealStats, error) {
	var stats domain.DealStats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'approved'),
		       COUNT(*) FILTER (WHERE status = 'rejected'),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'approved'), 0)
		FROM deals
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&stats.Total, &stats.Pending, &stats.Approved, &stats.Rejected, &stats.ApprovedAmount); err != nil {
		return domain.DealStats{}, err
	}
	return stats, nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	metadata := o.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (id, deal_id, customer_name, customer_email, amount, status, bank_reference, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		RETURNING id, deal_id, customer_name, customer_email, amount, status, bank_reference, metadata, created_at
	`, o.ID, o.DealID, o.CustomerName, o.CustomerEmail, o.Amount, o.Status, o.BankReference, string(metadata))
	return scanOrder(row)
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.deal_id, o.customer_name, o.customer_email, o.amount, o.status, o.bank_reference, o.metadata, o.created_at
		FROM orders o
		JOIN deals d ON d.id = o.deal_id
		WHERE d.user_id = $1
		ORDER BY o.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var o domain.Order
		var metadata []byte
		if err := rows.Scan(&o.ID, &o.DealID, &o.CustomerName, &o.CustomerEmail, &o.Amount, &o.Status, &o.BankReference, &metadata, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Metadata = metadata
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *PostgresStore) CountDeals(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deals`)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count deals: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row *sql.Row) (domain.Deal, error) {
	return scanDealRows(row)
}

func scanDealRows(row rowScanner) (domain.Deal, error) {
	var d domain.Deal
	var insuranceType, propertyType, location, carMake, carModel, aiFeedback sql.NullString
	var coverage sql.NullFloat64
	var year sql.NullInt64
	var images []byte
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Title,
		&d.Type,
		&d.Description,
		&d.Amount,
		&d.Status,
		&insuranceType,
		&coverage,
		&propertyType,
		&location,
		&carMake,
		&carModel,
		&year,
		&aiFeedback,
		&images,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return domain.Deal{}, err
	}
	d.InsuranceType = nullStr(insuranceType)
	d.PropertyType = nullStr(propertyType)
	d.Location = nullStr(location)
	d.Make = nullStr(carMake)
	d.Model = nullStr(carModel)
	d.AIFeedback = nullStr(aiFeedback)
	if coverage.Valid {
		d.Coverage = &coverage.Float64
	}
	if year.Valid {
		y := int(year.Int64)
		d.Year = &y
	}
	d.Images = make([]string, 0)
	if len(images) > 0 {
		if err := json.Unmarshal(images, &d.Images); err != nil {
			return domain.Deal{}, fmt.Errorf("decode images: %w", err)
		}
	}
	return d, nil
}

func scanOrder(row *sql.Row) (domain.Order, error) {
	var o domain.Order
	var metadata []byte
	if err := row.Scan(&o.ID, &o.DealID, &o.CustomerName, &o.CustomerEmail, &o.Amount, &o.Status, &o.BankReference, &metadata, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Metadata = metadata
	return o, nil
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func imagesJSON(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
