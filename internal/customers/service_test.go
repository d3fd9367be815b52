package customer

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Customer{}))
	return conn
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	db := openTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func TestResolveCreatesCustomer(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)

	customer, err := svc.Resolve(context.Background(), nil, ResolveInput{
		Email:     "  Buyer@Example.com ",
		FirstName: "Laura",
		LastName:  "Nieto",
		Phone:     "3001234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", customer.Email)
	assert.Equal(t, "Laura", customer.FirstName)
	require.NotNil(t, customer.Phone)
	assert.Equal(t, "3001234567", *customer.Phone)

	var count int64
	require.NoError(t, db.Model(&models.Customer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolvePlaceholdersForMissingNames(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	customer, err := svc.Resolve(context.Background(), nil, ResolveInput{Email: "anon@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "No especificado", customer.FirstName)
	assert.Equal(t, "No especificado", customer.LastName)
	assert.Nil(t, customer.Phone)
}

func TestResolveReusesAndRefreshesExisting(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, nil, ResolveInput{Email: "buyer@example.com", FirstName: "Laura", LastName: "Nieto"})
	require.NoError(t, err)

	second, err := svc.Resolve(ctx, nil, ResolveInput{
		Email:     "BUYER@example.com",
		FirstName: "Laura María",
		LastName:  "Nieto",
		Phone:     "3017654321",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Laura María", second.FirstName)
	require.NotNil(t, second.Phone)
	assert.Equal(t, "3017654321", *second.Phone)

	var count int64
	require.NoError(t, db.Model(&models.Customer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveDoesNotOverwriteWithPlaceholder(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, nil, ResolveInput{Email: "buyer@example.com", FirstName: "Laura", LastName: "Nieto"})
	require.NoError(t, err)

	refreshed, err := svc.Resolve(ctx, nil, ResolveInput{Email: "buyer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Laura", refreshed.FirstName)
	assert.Equal(t, "Nieto", refreshed.LastName)
}

func TestResolveRequiresEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.Resolve(context.Background(), nil, ResolveInput{FirstName: "Laura"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestResolveRunsInsideTransaction(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Resolve(ctx, tx, ResolveInput{Email: "tx@example.com"}); err != nil {
			return err
		}
		return fmt.Errorf("force rollback")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Customer{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
