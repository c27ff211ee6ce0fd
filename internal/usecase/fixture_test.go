package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/events"
	"callcenter-service/internal/repository"
	"callcenter-service/internal/repository/memory"
	"callcenter-service/pkg/id"
	"callcenter-service/pkg/jwtutil"
	"callcenter-service/pkg/utils"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassword = "correct-horse-42"

var (
	testHashOnce sync.Once
	testHash     string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		h, err := utils.HashPassword(testPassword)
		require.NoError(t, err)
		testHash = h
	})
	return testHash
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyAccounts fails the account-side writes on demand.
type flakyAccounts struct {
	repository.AccountRepository
	failAppend error
	failRemove error
}

func (f *flakyAccounts) AppendAssignments(ctx context.Context, accountID string, ids []string, at time.Time) error {
	if f.failAppend != nil {
		return f.failAppend
	}
	return f.AccountRepository.AppendAssignments(ctx, accountID, ids, at)
}

func (f *flakyAccounts) RemoveAssignments(ctx context.Context, accountID string, ids []string, at time.Time) (int64, error) {
	if f.failRemove != nil {
		return 0, f.failRemove
	}
	return f.AccountRepository.RemoveAssignments(ctx, accountID, ids, at)
}

type fixture struct {
	store    *memory.Store
	contacts *memory.ContactStore
	accounts *flakyAccounts
	pub      *recordingPublisher

	auth      *AuthUsecase
	assign    *AssignmentUsecase
	calls     *CallStatusUsecase
	query     *QueryUsecase
	contactUC *ContactUsecase
	accountUC *AccountUsecase
	reconcile *ReconcileUsecase

	admin, alice, bob domain.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	contacts := store.Contacts()
	accounts := &flakyAccounts{AccountRepository: store}
	pub := &recordingPublisher{}

	sf, err := id.NewSnowflake(1)
	require.NoError(t, err)
	gen, ver, err := jwtutil.LoadAndBuild(jwtutil.JWTConfig{
		Secret:   strings.Repeat("s", 32),
		Issuer:   "callcenter-test",
		Audience: "callcenter-test-clients",
		TTL:      time.Hour,
	})
	require.NoError(t, err)

	f := &fixture{store: store, contacts: contacts, accounts: accounts, pub: pub}
	f.auth = NewAuthUsecase(accounts, gen, ver, sf, nil, logger)
	f.assign = NewAssignmentUsecase(accounts, contacts, pub, logger)
	f.calls = NewCallStatusUsecase(accounts, contacts, pub, logger)
	f.query = NewQueryUsecase(accounts, contacts, logger)
	f.contactUC = NewContactUsecase(contacts, sf, logger)
	f.accountUC = NewAccountUsecase(accounts, f.assign, f.auth, pub, logger)
	f.reconcile = NewReconcileUsecase(accounts, contacts, pub, logger)

	f.admin = f.addAccount(t, "admin", "Admin", domain.RoleAdmin)
	f.alice = f.addAccount(t, "alice", "Alice", domain.RoleUser)
	f.bob = f.addAccount(t, "bob", "Bob", domain.RoleUser)
	return f
}

func (f *fixture) addAccount(t *testing.T, idv, name string, role domain.Role) domain.Principal {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.store.Create(context.Background(), &domain.Account{
		ID:           idv,
		Email:        idv + "@callcenter.test",
		Name:         name,
		Role:         role,
		PasswordHash: passwordHash(t),
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	return domain.Principal{AccountID: idv, Role: role}
}

// addContacts creates n contacts with serials 1..n and two phones each.
func (f *fixture) addContacts(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		c, err := f.contactUC.Create(context.Background(), domain.NewContact{
			SerialNo:     int64(i),
			PMNo:         fmt.Sprintf("PM-%03d", i),
			EnrollmentNo: fmt.Sprintf("EN-%03d", i),
			Name:         fmt.Sprintf("Contact %d", i),
			Phones:       []string{fmt.Sprintf("+1555000%03d", i), fmt.Sprintf("+1666000%03d", i)},
			Address:      fmt.Sprintf("%d Main St", i),
		})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	return ids
}

func (f *fixture) account(t *testing.T, id string) *domain.Account {
	t.Helper()
	a, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *fixture) contact(t *testing.T, id string) *domain.Contact {
	t.Helper()
	c, err := f.contacts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}
