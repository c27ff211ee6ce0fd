package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/cache"
	"callcenter-service/pkg/id"
	"callcenter-service/pkg/jwtutil"
	"callcenter-service/pkg/utils"
	"callcenter-service/pkg/xerrors"

	"go.uber.org/zap"
)

const (
	accountCacheNS  = "account"
	accountCacheTTL = 5 * time.Minute
)

type AuthUsecase struct {
	accounts repository.AccountRepository
	gen      *jwtutil.Generator
	ver      *jwtutil.Verifier
	ids      *id.Snowflake
	cache    *cache.Cache
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthUsecase wires authentication. cache may be nil.
func NewAuthUsecase(
	accounts repository.AccountRepository,
	gen *jwtutil.Generator,
	ver *jwtutil.Verifier,
	ids *id.Snowflake,
	c *cache.Cache,
	logger *zap.Logger,
) *AuthUsecase {
	return &AuthUsecase{
		accounts: accounts,
		gen:      gen,
		ver:      ver,
		ids:      ids,
		cache:    c,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// equalizeTiming burns one bcrypt comparison so unknown emails cost the same
// as wrong passwords.
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = utils.HashPassword("callcenter-timing-guard")
	})
	utils.CheckPassword(password, dummyHash)
}

func (uc *AuthUsecase) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, xerrors.Invalid("", "email and password are required")
	}

	acc, err := uc.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, xerrors.ErrAccountNotFound) {
			equalizeTiming(password)
			loginsTotal.WithLabelValues("invalid").Inc()
			return nil, xerrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	ok, legacy := utils.CheckPassword(password, acc.PasswordHash)
	if !ok {
		loginsTotal.WithLabelValues("invalid").Inc()
		return nil, xerrors.ErrInvalidCredentials
	}
	if legacy {
		uc.upgradeLegacyPassword(ctx, acc.ID, password)
	}

	token, err := uc.IssueToken(acc.ID, acc.Role)
	if err != nil {
		return nil, err
	}
	loginsTotal.WithLabelValues("ok").Inc()
	uc.logger.Info("login succeeded", zap.String("account_id", acc.ID))
	return &domain.LoginResult{Token: token, Account: acc.Summary()}, nil
}

func (uc *AuthUsecase) upgradeLegacyPassword(ctx context.Context, accountID, password string) {
	hash, err := utils.HashPassword(password)
	if err != nil {
		uc.logger.Error("failed to hash legacy password", zap.String("account_id", accountID), zap.Error(err))
		return
	}
	if err := uc.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		uc.logger.Error("failed to persist upgraded password", zap.String("account_id", accountID), zap.Error(err))
		return
	}
	uc.logger.Warn("legacy plaintext password upgraded to bcrypt", zap.String("account_id", accountID))
}

func (uc *AuthUsecase) IssueToken(accountID string, role domain.Role) (string, error) {
	token, _, err := uc.gen.Generate(accountID, string(role))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (uc *AuthUsecase) VerifyToken(token string) (*domain.Principal, error) {
	claims, err := uc.ver.ParseAndValidate(token)
	if err != nil {
		return nil, xerrors.ErrInvalidToken
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return nil, xerrors.ErrInvalidToken
	}
	return &domain.Principal{AccountID: claims.UserID, Role: role}, nil
}

type cachedAccount struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// Authenticate verifies the token and confirms the account still exists. The
// stored role wins over the role in the claims.
func (uc *AuthUsecase) Authenticate(ctx context.Context, token string) (*domain.Principal, error) {
	p, err := uc.VerifyToken(token)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		var ca cachedAccount
		if err := uc.cache.GetJSON(ctx, accountCacheNS, p.AccountID, &ca); err == nil {
			return &domain.Principal{AccountID: ca.ID, Role: ca.Role}, nil
		}
	}

	acc, err := uc.accounts.GetByID(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, xerrors.ErrAccountNotFound) {
			return nil, xerrors.ErrInvalidToken
		}
		return nil, err
	}
	if uc.cache != nil {
		if err := uc.cache.SetJSON(ctx, accountCacheNS, acc.ID, cachedAccount{ID: acc.ID, Role: acc.Role}, accountCacheTTL); err != nil {
			uc.logger.Debug("account cache write failed", zap.Error(err))
		}
	}
	return &domain.Principal{AccountID: acc.ID, Role: acc.Role}, nil
}

// ForgetAccount drops the cached lookup so a deleted account loses access
// immediately.
func (uc *AuthUsecase) ForgetAccount(ctx context.Context, accountID string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Delete(ctx, accountCacheNS, accountID); err != nil {
		uc.logger.Warn("account cache eviction failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (uc *AuthUsecase) Register(ctx context.Context, in domain.RegisterInput) (*domain.Account, error) {
	name := strings.TrimSpace(in.Name)
	email := utils.NormalizeEmail(in.Email)
	if name == "" {
		return nil, xerrors.Invalid("name", "is required")
	}
	if !utils.ValidateEmail(email) {
		return nil, xerrors.Invalid("email", "is not a valid address")
	}
	if ok, err := utils.ValidatePassword(in.Password); !ok {
		return nil, xerrors.Invalid("password", err.Error())
	}
	role := domain.RoleUser
	if in.Role != "" {
		r, ok := domain.ParseRole(in.Role)
		if !ok {
			return nil, xerrors.Invalid("role", "must be admin or user")
		}
		role = r
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := uc.now()
	acc := &domain.Account{
		ID:           uc.ids.Generate(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	uc.logger.Info("account registered",
		zap.String("account_id", acc.ID),
		zap.String("role", string(role)))
	return acc, nil
}

func (uc *AuthUsecase) Me(ctx context.Context, p domain.Principal) (*domain.Account, error) {
	return uc.accounts.GetByID(ctx, p.AccountID)
}

// SeedAdmin creates the bootstrap admin unless an account with that email
// already exists. Empty credentials skip seeding.
func (uc *AuthUsecase) SeedAdmin(ctx context.Context, email, password, name string) error {
	if email == "" || password == "" {
		uc.logger.Info("system admin seeding skipped: credentials not configured")
		return nil
	}
	_, err := uc.accounts.GetByEmail(ctx, utils.NormalizeEmail(email))
	if err == nil {
		uc.logger.Info("system admin already present", zap.String("email", email))
		return nil
	}
	if !errors.Is(err, xerrors.ErrAccountNotFound) {
		return fmt.Errorf("check system admin: %w", err)
	}
	acc, err := uc.Register(ctx, domain.RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     string(domain.RoleAdmin),
	})
	if err != nil {
		if errors.Is(err, xerrors.ErrEmailAlreadyInUse) {
			return nil
		}
		return fmt.Errorf("seed system admin: %w", err)
	}
	uc.logger.Info("system admin seeded", zap.String("account_id", acc.ID))
	return nil
}
