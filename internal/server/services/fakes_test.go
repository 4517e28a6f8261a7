package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/cryptox"
	"github.com/cryptguard/cryptguard/internal/dbx"
	"github.com/cryptguard/cryptguard/internal/logging"
	"github.com/cryptguard/cryptguard/internal/server/config"
	"github.com/cryptguard/cryptguard/internal/server/models"
	filerecordsrepo "github.com/cryptguard/cryptguard/internal/server/repositories/filerecords"
	replaynoncesrepo "github.com/cryptguard/cryptguard/internal/server/repositories/replaynonces"
	revokedtokensrepo "github.com/cryptguard/cryptguard/internal/server/repositories/revokedtokens"
	usersrepo "github.com/cryptguard/cryptguard/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// --- shared helpers ---

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PinataJWT = "token"
	cfg.ContractAddress = "0x1234"
	return cfg
}

func testVault(t *testing.T) *cryptox.KeyVault {
	t.Helper()
	master := make([]byte, cryptox.KeySize)
	for i := range master {
		master[i] = byte(i + 1)
	}
	v, err := cryptox.NewKeyVault(master)
	require.NoError(t, err)
	return v
}

func testAudit() *logging.Audit { return logging.NewAudit(io.Discard) }

// newTxCapableDB backs services that open transactions. The repository fakes
// ignore the handle they are given, so only Begin/Commit/Rollback reach the
// mock.
func newTxCapableDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) With(...any) logging.Logger            { return nopLogger{} }

// --- repository fakes ---

type fakeUsersRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	getErr error
	setErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{users: map[string]*models.User{}}
}

func (f *fakeUsersRepo) GetOrCreate(_ context.Context, address string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[address]
	if !ok {
		u = &models.User{Address: address, CreatedAt: time.Now()}
		f.users[address] = u
	}
	u.LoginCount++
	u.LastLogin = time.Now()
	return u, nil
}

func (f *fakeUsersRepo) Get(_ context.Context, address string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[address]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) SetEncryptedKeyIfAbsent(_ context.Context, address string, encryptedKey []byte) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[address]
	if !ok {
		return false, nil
	}
	if u.EncryptedKey != nil {
		return false, nil
	}
	u.EncryptedKey = encryptedKey
	return true, nil
}

type fakeFileRecordsRepo struct {
	mu      sync.Mutex
	seq     int
	records []*models.FileRecord

	createErr error
	listErr   error
}

func newFakeFileRecordsRepo() *fakeFileRecordsRepo { return &fakeFileRecordsRepo{} }

func (f *fakeFileRecordsRepo) Create(_ context.Context, record *models.FileRecord) (*models.FileRecord, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.OwnerAddress == record.OwnerAddress && r.FileHash == record.FileHash {
			return nil, common.ErrorAlreadyExists
		}
		if r.StorageCID == record.StorageCID {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.seq++
	cp := *record
	cp.ID = fmt.Sprintf("rec-%d", f.seq)
	cp.UploadTime = time.Now()
	f.records = append(f.records, &cp)
	out := cp
	return &out, nil
}

func (f *fakeFileRecordsRepo) ExistsByOwnerAndHash(_ context.Context, owner, fileHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.OwnerAddress == owner && r.FileHash == fileHash {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFileRecordsRepo) GetByID(_ context.Context, id, owner string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id && r.OwnerAddress == owner {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeFileRecordsRepo) GetByOwnerAndCID(_ context.Context, owner, storageCID string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.OwnerAddress == owner && r.StorageCID == storageCID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeFileRecordsRepo) ListRecent(_ context.Context, owner string, limit int) ([]*models.FileRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FileRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].OwnerAddress == owner {
			cp := *f.records[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeFileRecordsRepo) ListAll(_ context.Context, owner string) ([]*models.FileRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FileRecord
	for _, r := range f.records {
		if r.OwnerAddress == owner {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeFileRecordsRepo) IncrementDownloadCount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			r.DownloadCount++
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeFileRecordsRepo) Delete(_ context.Context, id, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == id && r.OwnerAddress == owner {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return common.ErrorNotFound
}

type fakeRevokedRepo struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	isErr   error
}

func newFakeRevokedRepo() *fakeRevokedRepo {
	return &fakeRevokedRepo{revoked: map[string]time.Time{}}
}

func (f *fakeRevokedRepo) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = expiresAt
	return nil
}

func (f *fakeRevokedRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	if f.isErr != nil {
		return false, f.isErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.revoked[jti]
	return ok && exp.After(time.Now()), nil
}

func (f *fakeRevokedRepo) PurgeExpired(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for jti, exp := range f.revoked {
		if !exp.After(time.Now()) {
			delete(f.revoked, jti)
		}
	}
	return nil
}

type fakeNoncesRepo struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newFakeNoncesRepo() *fakeNoncesRepo { return &fakeNoncesRepo{seen: map[string]time.Time{}} }

func (f *fakeNoncesRepo) Register(_ context.Context, nonce string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[nonce]; ok {
		return false, nil
	}
	f.seen[nonce] = expiresAt
	return true, nil
}

func (f *fakeNoncesRepo) PurgeExpired(_ context.Context) error { return nil }

type fakeRepoManager struct {
	users       *fakeUsersRepo
	fileRecords *fakeFileRecordsRepo
	revoked     *fakeRevokedRepo
	nonces      *fakeNoncesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:       newFakeUsersRepo(),
		fileRecords: newFakeFileRecordsRepo(),
		revoked:     newFakeRevokedRepo(),
		nonces:      newFakeNoncesRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.users }
func (m *fakeRepoManager) FileRecords(dbx.DBTX) filerecordsrepo.Repository {
	return m.fileRecords
}
func (m *fakeRepoManager) RevokedTokens(dbx.DBTX) revokedtokensrepo.Repository { return m.revoked }
func (m *fakeRepoManager) ReplayNonces(dbx.DBTX) replaynoncesrepo.Repository   { return m.nonces }

// --- collaborator fakes ---

type fakeStore struct {
	mu   sync.Mutex
	seq  int
	pins map[string][]byte

	pinErr   error
	fetchErr error
	unpinErr error
	// fail only the pin whose payload name matches
	pinErrForName string
	// block the matching pin until its context expires
	pinHangForName string
}

func newFakeStore() *fakeStore { return &fakeStore{pins: map[string][]byte{}} }

func (s *fakeStore) Pin(ctx context.Context, name string, data []byte) (string, error) {
	if s.pinErr != nil {
		return "", s.pinErr
	}
	if s.pinErrForName != "" && name == s.pinErrForName {
		return "", common.ErrDependencyUnavailable
	}
	if s.pinHangForName != "" && name == s.pinHangForName {
		<-ctx.Done()
		return "", ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	cid := fmt.Sprintf("Qm%04d", s.seq)
	s.pins[cid] = append([]byte(nil), data...)
	return cid, nil
}

func (s *fakeStore) Fetch(_ context.Context, cid string) ([]byte, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.pins[cid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStore) Unpin(ctx context.Context, cid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.unpinErr != nil {
		return s.unpinErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pins, cid)
	return nil
}

type fakeLedger struct {
	anchored bool
	err      error

	gotIndex int64
	gotHash  string
}

func (l *fakeLedger) VerifyFile(_ context.Context, index int64, fileHash string) (bool, error) {
	l.gotIndex = index
	l.gotHash = fileHash
	return l.anchored, l.err
}
