package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

type SeederHasher interface {
	Hash(password string) (string, error)
}

type SeederRepo interface {
	Create(ctx context.Context, u domain.User) (domain.User, error)
}

// SeedAccount is a fixture account created on dev start.
type SeedAccount struct {
	Email    string
	Name     string
	Role     domain.Role
	Password string
}

// DevSeedAccounts are created when SEED_DEV_USERS is set, one per role.
var DevSeedAccounts = []SeedAccount{
	{Email: "admin@example.com", Name: "Admin", Role: domain.RoleAdmin, Password: "AdminPassword123"},
	{Email: "vendor@example.com", Name: "Vendor", Role: domain.RoleVendor, Password: "VendorPassword123"},
	{Email: "customer@example.com", Name: "Customer", Role: domain.RoleCustomer, Password: "CustomerPassword123"},
}

// SeedUsers creates the given accounts as active and verified. Existing
// accounts are left alone, so it is safe to run on every restart.
func SeedUsers(ctx context.Context, repo SeederRepo, hasher SeederHasher, accounts []SeedAccount) int {
	created := 0
	for _, a := range accounts {
		hash, err := hasher.Hash(a.Password)
		if err != nil {
			logger.Logger.Warn().Err(err).Str("email", a.Email).Msg("seed_hash_failed")
			continue
		}

		_, err = repo.Create(ctx, domain.User{
			ID:            uuid.NewString(),
			Email:         domain.NormalizeEmail(a.Email),
			Name:          a.Name,
			PasswordHash:  hash,
			Role:          a.Role,
			Active:        true,
			EmailVerified: true,
			TokenVersion:  domain.InitialTokenVersion,
		})
		if err != nil {
			// duplicates are expected after the first start
			if !domain.Is(err, "email_already_exists") {
				logger.Logger.Warn().Err(err).Str("email", a.Email).Msg("seed_create_failed")
			}
			continue
		}
		created++
	}

	logger.Logger.Info().Int("created", created).Msg("users seeded")
	return created
}
