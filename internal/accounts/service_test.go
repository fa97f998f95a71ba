package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/backoffice/internal/notify"
)

type memoryAccountRepo struct {
	accounts []Account
}

func (r *memoryAccountRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := &memoryAccountTx{accounts: append([]Account(nil), r.accounts...)}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	r.accounts = staged.accounts
	return nil
}

func (r *memoryAccountRepo) FindByEmail(ctx context.Context, email string) (Account, error) {
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryAccountRepo) Get(ctx context.Context, id int64) (Account, error) {
	for _, a := range r.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryAccountRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			r.accounts[i].PasswordHash = hash
			return nil
		}
	}
	return ErrNotFound
}

type memoryAccountTx struct {
	accounts []Account
}

func (t *memoryAccountTx) Create(ctx context.Context, a Account) (Account, error) {
	for _, existing := range t.accounts {
		if existing.Email == a.Email {
			return Account{}, ErrDuplicateEmail
		}
	}
	a.ID = int64(len(t.accounts) + 1)
	t.accounts = append(t.accounts, a)
	return a, nil
}

type fixture struct {
	svc    *Service
	repo   *memoryAccountRepo
	sender *notify.MemorySender
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &memoryAccountRepo{}
	sender := notify.NewMemorySender()
	mailer := notify.NewNotifier(sender, notify.NotifierConfig{AppName: "Duka", FrontendURL: "https://app.example.com/"}, slog.Default())
	svc := NewService(repo, NewTokenStore(client), mailer, nil, 30*time.Minute, slog.Default())
	svc.cost = bcrypt.MinCost
	return fixture{svc: svc, repo: repo, sender: sender, mr: mr}
}

func TestRegisterSendsWelcome(t *testing.T) {
	f := newFixture(t)
	account, err := f.svc.Register(context.Background(), RegisterInput{Name: "Wanjiru", Email: " Wanjiru@Example.com ", Password: "s3cret-pass"})
	require.NoError(t, err)
	require.Equal(t, "wanjiru@example.com", account.Email)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("s3cret-pass")))

	msgs := f.sender.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "wanjiru@example.com", msgs[0].To)
	require.Contains(t, msgs[0].Subject, "Welcome to Duka")

	_, err = f.svc.Register(context.Background(), RegisterInput{Name: "Other", Email: "wanjiru@example.com", Password: "another-pass"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterRollsBackWhenEmailFails(t *testing.T) {
	f := newFixture(t)
	f.sender.Err = errors.New("smtp down")

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Otieno", Email: "otieno@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrEmail)
	require.Empty(t, f.repo.accounts)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "X", Email: "not-an-email", Password: "short"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account, err := f.svc.Register(ctx, RegisterInput{Name: "Achieng", Email: "achieng@example.com", Password: "first-password"})
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, ResetRequest{Email: "achieng@example.com"}))
	msgs := f.sender.Messages()
	require.Len(t, msgs, 2)
	body := msgs[1].HTML
	require.Contains(t, body, "https://app.example.com/reset-password/")
	require.Contains(t, body, "30m0s")

	keys := f.mr.Keys()
	require.Len(t, keys, 1)
	token := strings.TrimPrefix(keys[0], resetKeyPrefix)
	require.Contains(t, body, token)
	require.Equal(t, 30*time.Minute, f.mr.TTL(keys[0]))

	require.NoError(t, f.svc.ResetPassword(ctx, ResetInput{Token: token, Password: "second-password"}))
	stored, err := f.repo.Get(ctx, account.ID)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("second-password")))

	err = f.svc.ResetPassword(ctx, ResetInput{Token: token, Password: "third-password"})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordResetExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterInput{Name: "Kamau", Email: "kamau@example.com", Password: "first-password"})
	require.NoError(t, err)
	require.NoError(t, f.svc.RequestPasswordReset(ctx, ResetRequest{Email: "kamau@example.com"}))
	token := strings.TrimPrefix(f.mr.Keys()[0], resetKeyPrefix)

	f.mr.FastForward(31 * time.Minute)
	err = f.svc.ResetPassword(ctx, ResetInput{Token: token, Password: "second-password"})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordResetEmailFailureDropsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterInput{Name: "Njeri", Email: "njeri@example.com", Password: "first-password"})
	require.NoError(t, err)

	f.sender.Err = errors.New("smtp down")
	err = f.svc.RequestPasswordReset(ctx, ResetRequest{Email: "njeri@example.com"})
	require.ErrorIs(t, err, ErrEmail)
	require.Empty(t, f.mr.Keys())
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), ResetRequest{Email: "ghost@example.com"}))
	require.Empty(t, f.sender.Messages())
	require.Empty(t, f.mr.Keys())
}
