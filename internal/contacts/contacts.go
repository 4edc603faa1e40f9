// Package contacts resolves a sender address to the directory record of the
// person and project behind it.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mailcal/internal/models"
)

// Directory looks up one contact by email. A miss is (nil, nil).
type Directory interface {
	LookupPerson(ctx context.Context, email string) (*models.PersonContext, error)
}

// Resolver substitutes the sentinel contact for senders the directory does
// not know.
type Resolver struct {
	dir    Directory
	logger *slog.Logger
}

// NewResolver creates a Resolver over dir.
func NewResolver(dir Directory, logger *slog.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// Resolve returns the contact for senderEmail, or models.UnknownPerson when
// there is none. Only a directory transport failure is an error.
func (r *Resolver) Resolve(ctx context.Context, senderEmail string) (models.PersonContext, error) {
	email := normalizeEmail(senderEmail)
	if email == "" {
		r.logger.Warn("Empty sender address, using unknown contact")
		return models.UnknownPerson(senderEmail), nil
	}

	p, err := r.dir.LookupPerson(ctx, email)
	if err != nil {
		return models.PersonContext{}, fmt.Errorf("lookup contact %s: %w", email, err)
	}
	if p == nil {
		r.logger.Info("No contact found, using unknown contact", "email", email)
		return models.UnknownPerson(email), nil
	}

	r.logger.Info("Contact resolved", "email", email, "name", p.Name, "role", p.Role)
	return *p, nil
}

func normalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "<"); i >= 0 {
		if j := strings.LastIndex(s, ">"); j > i {
			s = s[i+1 : j]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}
