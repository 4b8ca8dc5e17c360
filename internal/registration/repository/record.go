package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homegate/registration-server/internal/registration/model"
)

// ErrNoRecord is returned when no domain record matches the query.
var ErrNoRecord = errors.New("domain record not found")

// ErrDuplicateName is returned when an insert collides with an existing
// remote name.
var ErrDuplicateName = errors.New("remote name already registered")

// RecordRepository provides CRUD operations for domain records against PostgreSQL.
type RecordRepository struct {
	db *pgxpool.Pool
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `token, local_name, remote_name, dns_challenge, local_ip, public_ip, description, email, timestamp`

// Add inserts a new domain record.
func (r *RecordRepository) Add(ctx context.Context, rec *model.DomainRecord) error {
	query := `
		INSERT INTO domains (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		rec.Token, rec.LocalName, rec.RemoteName, rec.DNSChallenge,
		rec.LocalIP, rec.PublicIP, rec.Description, rec.Email, rec.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicateName
		}
		return fmt.Errorf("insert domain record: %w", err)
	}
	return nil
}

// GetByToken retrieves a record by its token.
func (r *RecordRepository) GetByToken(ctx context.Context, token string) (*model.DomainRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM domains WHERE token = $1`
	return r.scanOne(ctx, query, token)
}

// GetByName retrieves a record by its remote name.
func (r *RecordRepository) GetByName(ctx context.Context, remoteName string) (*model.DomainRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM domains WHERE remote_name = $1`
	return r.scanOne(ctx, query, remoteName)
}

// GetByPublicIP returns every record whose public_ip matches, newest first.
func (r *RecordRepository) GetByPublicIP(ctx context.Context, publicIP string) ([]*model.DomainRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM domains WHERE public_ip = $1 ORDER BY timestamp DESC`

	rows, err := r.db.Query(ctx, query, publicIP)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.DomainRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Update replaces the full record row identified by rec.Token.
func (r *RecordRepository) Update(ctx context.Context, rec *model.DomainRecord) error {
	query := `
		UPDATE domains SET
			local_name    = $2,
			remote_name   = $3,
			dns_challenge = $4,
			local_ip      = $5,
			public_ip     = $6,
			description   = $7,
			email         = $8,
			timestamp     = $9
		WHERE token = $1`

	tag, err := r.db.Exec(ctx, query,
		rec.Token, rec.LocalName, rec.RemoteName, rec.DNSChallenge,
		rec.LocalIP, rec.PublicIP, rec.Description, rec.Email, rec.Timestamp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRecord
	}
	return nil
}

// DeleteByToken removes the record for token and returns the number of rows deleted.
func (r *RecordRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM domains WHERE token = $1`, token)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of subscribed records.
func (r *RecordRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM domains`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// scanOne executes a query expected to return at most one record row.
func (r *RecordRepository) scanOne(ctx context.Context, query string, args ...any) (*model.DomainRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoRecord
	}
	return scan(rows)
}

// scan reads a single domain record from a pgx.Rows cursor.
// Column order matches recordColumns.
func scan(rows pgx.Rows) (*model.DomainRecord, error) {
	var rec model.DomainRecord
	err := rows.Scan(
		&rec.Token, &rec.LocalName, &rec.RemoteName, &rec.DNSChallenge,
		&rec.LocalIP, &rec.PublicIP, &rec.Description, &rec.Email, &rec.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
