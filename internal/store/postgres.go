package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hvgateway/internal/apierr"
	"hvgateway/internal/logger"
	"hvgateway/internal/model"
	"hvgateway/internal/secretenc"
)

// PostgresStore is a database/sql-based implementation backed by the pgx
// stdlib driver, parameterized queries throughout.
type PostgresStore struct {
	db     *sql.DB
	secret *secretenc.Box
}

// Open connects to databaseURL and returns a ready PostgresStore. secret
// decrypts/encrypts api_secret at this boundary so ciphertext, never
// cleartext, ever touches the nodes table.
func Open(ctx context.Context, databaseURL string, secret *secretenc.Box) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &PostgresStore{db: db, secret: secret}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ListNodes(ctx context.Context) ([]*model.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind, api_url, api_key, api_secret, status,
		last_check, created_at, insecure_tls, client_cert_pem, client_key_pem FROM nodes ORDER BY created_at`)
	if err != nil {
		return nil, apierr.Upstreamf(err, "list nodes")
	}
	defer rows.Close()

	var out []*model.Node
	for rows.Next() {
		n, err := s.scanNode(rows)
		if err != nil {
			return nil, apierr.Upstreamf(err, "scan node row")
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Upstreamf(err, "iterate node rows")
	}
	return out, nil
}

func (s *PostgresStore) GetNode(ctx context.Context, id string) (*model.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, kind, api_url, api_key, api_secret, status,
		last_check, created_at, insecure_tls, client_cert_pem, client_key_pem FROM nodes WHERE id = $1`, id)
	n, err := s.scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFoundf("node %s not found", id)
	}
	if err != nil {
		return nil, apierr.Upstreamf(err, "get node %s", id)
	}
	return n, nil
}

func (s *PostgresStore) CreateNode(ctx context.Context, n *model.Node) error {
	cipher, err := s.secret.Encrypt(n.APISecret)
	if err != nil {
		return apierr.Upstreamf(err, "encrypt api_secret")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO nodes
		(id, name, kind, api_url, api_key, api_secret, status, last_check, created_at, insecure_tls, client_cert_pem, client_key_pem)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		n.ID, n.Name, string(n.Kind), n.APIURL, n.APIKey, cipher, string(n.Status),
		n.LastCheck, n.CreatedAt, n.InsecureTLS, nullableString(n.ClientCertPEM), nullableString(n.ClientKeyPEM))
	if err != nil {
		return apierr.Upstreamf(err, "insert node %s", n.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateNode(ctx context.Context, id string, patch NodePatch) (*model.Node, error) {
	n, err := s.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		n.Name = *patch.Name
	}
	if patch.APIURL != nil {
		n.APIURL = *patch.APIURL
	}
	if patch.APIKey != nil {
		n.APIKey = *patch.APIKey
	}
	if patch.APISecretPlain != nil {
		n.APISecret = *patch.APISecretPlain
	}
	if patch.InsecureTLS != nil {
		n.InsecureTLS = patch.InsecureTLS
	}
	if patch.ClientCertPEM != nil {
		n.ClientCertPEM = *patch.ClientCertPEM
	}
	if patch.ClientKeyPEM != nil {
		n.ClientKeyPEM = *patch.ClientKeyPEM
	}

	cipher, err := s.secret.Encrypt(n.APISecret)
	if err != nil {
		return nil, apierr.Upstreamf(err, "encrypt api_secret")
	}
	_, err = s.db.ExecContext(ctx, `UPDATE nodes SET name=$1, api_url=$2, api_key=$3, api_secret=$4,
		insecure_tls=$5, client_cert_pem=$6, client_key_pem=$7 WHERE id=$8`,
		n.Name, n.APIURL, n.APIKey, cipher, n.InsecureTLS, nullableString(n.ClientCertPEM), nullableString(n.ClientKeyPEM), id)
	if err != nil {
		return nil, apierr.Upstreamf(err, "update node %s", id)
	}
	return n, nil
}

func (s *PostgresStore) DeleteNode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	if err != nil {
		return apierr.Upstreamf(err, "delete node %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFoundf("node %s not found", id)
	}
	return nil
}

func (s *PostgresStore) UpdateNodeStatus(ctx context.Context, id string, status model.NodeStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE nodes SET status=$1, last_check=$2 WHERE id=$3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return apierr.Upstreamf(err, "update node status %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFoundf("node %s not found", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanNode(row scanner) (*model.Node, error) {
	var n model.Node
	var kind, status string
	var cipher []byte
	var certPEM, keyPEM sql.NullString
	var insecure sql.NullBool

	if err := row.Scan(&n.ID, &n.Name, &kind, &n.APIURL, &n.APIKey, &cipher, &status,
		&n.LastCheck, &n.CreatedAt, &insecure, &certPEM, &keyPEM); err != nil {
		return nil, err
	}
	n.Kind = model.NodeKind(kind)
	n.Status = model.NodeStatus(status)
	if insecure.Valid {
		v := insecure.Bool
		n.InsecureTLS = &v
	}
	n.ClientCertPEM = certPEM.String
	n.ClientKeyPEM = keyPEM.String

	if len(cipher) > 0 {
		plain, err := s.secret.Decrypt(cipher)
		if err != nil {
			logger.Get().Error().Err(err).Str("node_id", n.ID).Msg("failed to decrypt api_secret")
			return nil, fmt.Errorf("decrypt api_secret for node %s: %w", n.ID, err)
		}
		n.APISecret = plain
	}
	return &n, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, email, password_hash, role, created_at
		FROM users WHERE username = $1`, username)
	return s.scanUser(row, username)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, email, password_hash, role, created_at
		FROM users WHERE id = $1`, id)
	return s.scanUser(row, id)
}

func (s *PostgresStore) scanUser(row scanner, ref string) (*model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFoundf("user %s not found", ref)
		}
		return nil, apierr.Upstreamf(err, "get user %s", ref)
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierr.Conflictf("username %s already exists", u.Username)
		}
		return apierr.Upstreamf(err, "insert user %s", u.Username)
	}
	return nil
}

func (s *PostgresStore) AnyAdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)`, string(model.RoleAdmin)).Scan(&exists)
	if err != nil {
		return false, apierr.Upstreamf(err, "check admin existence")
	}
	return exists, nil
}

func (s *PostgresStore) CreateTicket(ctx context.Context, t *Ticket) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO support_tickets (id, subject, message, priority, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.Subject, t.Message, t.Priority, t.Status, t.CreatedAt)
	if err != nil {
		return apierr.Upstreamf(err, "insert support ticket %s", t.ID)
	}
	return nil
}

func (s *PostgresStore) ListTickets(ctx context.Context) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, subject, message, priority, status, created_at
		FROM support_tickets ORDER BY created_at DESC`)
	if err != nil {
		return nil, apierr.Upstreamf(err, "list support tickets")
	}
	defer rows.Close()

	var out []*Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.Subject, &t.Message, &t.Priority, &t.Status, &t.CreatedAt); err != nil {
			return nil, apierr.Upstreamf(err, "scan support ticket row")
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// isUniqueViolation recognizes Postgres' unique_violation SQLSTATE (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
