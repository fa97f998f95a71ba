package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/backoffice/internal/notify"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort describes account persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindByEmail(ctx context.Context, email string) (Account, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// Tokens stores single-use reset tokens.
type Tokens interface {
	Put(ctx context.Context, token string, accountID int64, ttl time.Duration) error
	Take(ctx context.Context, token string) (int64, error)
	Delete(ctx context.Context, token string) error
}

// Mailer delivers account emails.
type Mailer interface {
	SendWelcome(ctx context.Context, in notify.WelcomeEmail) error
	SendPasswordReset(ctx context.Context, in notify.PasswordReset) error
}

// Service implements registration and password reset.
type Service struct {
	repo      RepositoryPort
	tokens    Tokens
	mailer    Mailer
	audit     shared.Auditor
	validator *validator.Validate
	logger    *slog.Logger
	resetTTL  time.Duration
	cost      int
}

// NewService constructs the account service.
func NewService(repo RepositoryPort, tokens Tokens, mailer Mailer, audit shared.Auditor, resetTTL time.Duration, logger *slog.Logger) *Service {
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		mailer:    mailer,
		audit:     audit,
		validator: httpx.NewValidator(),
		logger:    logger,
		resetTTL:  resetTTL,
		cost:      bcrypt.DefaultCost,
	}
}

// Register creates an account and sends the welcome email. The account is only kept
// when the email was delivered.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Account, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validator.Struct(input); err != nil {
		return Account{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return Account{}, err
	}
	var account Account
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.Create(ctx, Account{Name: input.Name, Email: input.Email, PasswordHash: string(hash)})
		if err != nil {
			return err
		}
		if err := s.mailer.SendWelcome(ctx, notify.WelcomeEmail{Name: account.Name, Email: account.Email}); err != nil {
			return fmt.Errorf("%w: %w", ErrEmail, err)
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.register", account.ID)
	return account, nil
}

// RequestPasswordReset emails a reset link. Unknown emails succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, input ResetRequest) error {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.validator.Struct(input); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	account, err := s.repo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("password reset for unknown email")
			return nil
		}
		return err
	}
	token := uuid.NewString()
	if err := s.tokens.Put(ctx, token, account.ID, s.resetTTL); err != nil {
		return err
	}
	err = s.mailer.SendPasswordReset(ctx, notify.PasswordReset{
		Name:      account.Name,
		Email:     account.Email,
		Token:     token,
		ExpiresIn: s.resetTTL,
	})
	if err != nil {
		if derr := s.tokens.Delete(context.WithoutCancel(ctx), token); derr != nil {
			s.logger.Error("drop reset token", slog.Any("error", derr))
		}
		return fmt.Errorf("%w: %w", ErrEmail, err)
	}
	s.record(ctx, "account.reset_requested", account.ID)
	return nil
}

// ResetPassword consumes token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, input ResetInput) error {
	if err := s.validator.Struct(input); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	id, err := s.tokens.Take(ctx, input.Token)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.record(ctx, "account.password_reset", id)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64) {
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "account", EntityID: fmt.Sprintf("%d", id)}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
