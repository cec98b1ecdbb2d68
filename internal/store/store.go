// Package store defines the narrow external-collaborator interfaces the
// gateway core consumes for Nodes, Users, and support tickets. The
// relational schema and migrations live outside this repository; this
// package only specifies the contract and provides a Postgres-backed
// implementation plus an in-memory one for tests.
package store

import (
	"context"
	"time"

	"hvgateway/internal/model"
)

// NodeStore persists registered hypervisor endpoints. Nodes cross this
// interface with a cleartext APISecret; the Postgres implementation
// encrypts it with internal/secretenc on write and decrypts it on read, so
// only ciphertext is stored in the nodes table.
type NodeStore interface {
	ListNodes(ctx context.Context) ([]*model.Node, error)
	GetNode(ctx context.Context, id string) (*model.Node, error)
	CreateNode(ctx context.Context, n *model.Node) error
	UpdateNode(ctx context.Context, id string, patch NodePatch) (*model.Node, error)
	DeleteNode(ctx context.Context, id string) error
	UpdateNodeStatus(ctx context.Context, id string, status model.NodeStatus) error
}

// NodePatch carries the subset of Node fields a PATCH may update; nil means
// "leave unchanged".
type NodePatch struct {
	Name           *string
	APIURL         *string
	APIKey         *string
	APISecretPlain *string
	InsecureTLS    *bool
	ClientCertPEM  *string
	ClientKeyPEM   *string
}

// UserStore persists application accounts.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	AnyAdminExists(ctx context.Context) (bool, error)
}

// Ticket is one support message filed by an authenticated user. Status is
// "open" on creation; triage happens outside the gateway.
type Ticket struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketStore persists support tickets.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *Ticket) error
	ListTickets(ctx context.Context) ([]*Ticket, error)
}
