package customer

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/andresmgomez/pasarela-backend/pkg/db"
	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
)

// Buyers that skip the optional name fields get a visible placeholder
// instead of an empty string.
const placeholderName = "No especificado"

// ResolveInput carries the contact data captured at checkout.
type ResolveInput struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Service resolves checkout contacts to customer rows.
type Service interface {
	Resolve(ctx context.Context, tx *gorm.DB, input ResolveInput) (*models.Customer, error)
}

type service struct {
	repo *Repository
}

// NewService constructs a customer service instance.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	return &service{repo: repo}, nil
}

// Resolve finds the customer by email or creates one, refreshing contact
// fields with any newer values the buyer supplied. It runs inside the
// caller's transaction when one is given.
func (s *service) Resolve(ctx context.Context, tx *gorm.DB, input ResolveInput) (*models.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}

	firstName := orPlaceholder(input.FirstName)
	lastName := orPlaceholder(input.LastName)
	phone := strings.TrimSpace(input.Phone)

	existing, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		customer := &models.Customer{
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		}
		if phone != "" {
			customer.Phone = &phone
		}
		created, createErr := repo.Create(ctx, customer)
		if createErr != nil {
			// concurrent checkout may have inserted the same email first
			if db.IsUniqueViolation(createErr, "idx_customers_email") {
				return repo.FindByEmail(ctx, email)
			}
			return nil, createErr
		}
		return created, nil
	}

	changed := false
	if firstName != placeholderName && existing.FirstName != firstName {
		existing.FirstName = firstName
		changed = true
	}
	if lastName != placeholderName && existing.LastName != lastName {
		existing.LastName = lastName
		changed = true
	}
	if phone != "" && (existing.Phone == nil || *existing.Phone != phone) {
		existing.Phone = &phone
		changed = true
	}
	if !changed {
		return existing, nil
	}
	return repo.Update(ctx, existing)
}

func orPlaceholder(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return placeholderName
	}
	return trimmed
}
