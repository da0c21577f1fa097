package integrate

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"glasswallet_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

const keyPrefix = "gwk_"

// APIKey is an intake key. Only the hash of the key is stored.
type APIKey struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Name           string
	KeyHash        string
	KeyPrefix      string
	AllowedDomains []string
	IsActive       bool
	LastUsedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// KeyStore is the API key persistence used by the service and the middleware.
type KeyStore interface {
	Create(ctx context.Context, userID uuid.UUID, name, keyHash, prefix string, allowedDomains []string) (APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]APIKey, error)
	Revoke(ctx context.Context, keyID, userID uuid.UUID) error
	TouchLastUsed(ctx context.Context, keyID uuid.UUID) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ KeyStore = (*Repository)(nil)

// GenerateAPIKey returns a new plaintext key, its hash and display prefix.
// The plaintext is shown to the user once and never stored.
func GenerateAPIKey() (plaintext, hash, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", err
	}
	plaintext = keyPrefix + hex.EncodeToString(buf)
	return plaintext, HashKey(plaintext), plaintext[:len(keyPrefix)+8], nil
}

// HashKey hashes a plaintext key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

const keyColumns = `id, user_id, name, key_hash, key_prefix, allowed_domains, is_active, last_used_at, created_at, updated_at`

func scanKey(row pgx.Row) (APIKey, error) {
	var k APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix,
		&k.AllowedDomains, &k.IsActive, &k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt)
	return k, err
}

func (r *Repository) Create(ctx context.Context, userID uuid.UUID, name, keyHash, prefix string, allowedDomains []string) (APIKey, error) {
	k, err := scanKey(r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (user_id, name, key_hash, key_prefix, allowed_domains)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+keyColumns, userID, name, keyHash, prefix, allowedDomains))
	if err != nil {
		return APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	return k, nil
}

// GetByHash returns an active key.
func (r *Repository) GetByHash(ctx context.Context, keyHash string) (APIKey, error) {
	k, err := scanKey(r.pool.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1 AND is_active = true`, keyHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("get api key: %w", err)
	}
	return k, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]APIKey, 0)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Revoke deactivates a key; revoked keys stay listed.
func (r *Repository) Revoke(ctx context.Context, keyID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE api_keys SET is_active = false, updated_at = now()
		WHERE id = $1 AND user_id = $2`, keyID, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("api key not found")
	}
	return nil
}

func (r *Repository) TouchLastUsed(ctx context.Context, keyID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, keyID)
	return err
}
