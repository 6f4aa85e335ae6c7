// Package auth implements C8: users, roles, and privileges kept in two
// layers — persisted rows in sys_users/sys_roles/sys_privileges (C7), and
// an in-memory cache for lock-protected permission checks (spec.md §4.9).
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/ridgedb/ridgedb/internal/catalog"
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

// Privilege is the in-memory form of a sys_privileges row (spec.md §3).
type Privilege struct {
	GranteeType string // catalog.GranteeUser or catalog.GranteeRole
	GranteeName string
	Database    string // may be catalog.Wildcard
	Table       string // may be catalog.Wildcard
	Action      string // SELECT/INSERT/UPDATE/DELETE/CREATE/DROP/ALTER/ALL
	Grantor     string
}

// Superuser is a reserved username that implicitly holds every privilege
// and cannot be stripped (spec.md §3 "Superuser role ... cannot be
// stripped"). A full role-membership model is out of this spec's scope
// (sys_roles has no user-role join table defined in §3), so superuser
// status is carried by username rather than role membership.
const Superuser = "root"

// Manager is the C8 user/role/permission manager over a Catalog (C7).
type Manager struct {
	catalog *catalog.Catalog

	mu    sync.RWMutex
	cache map[string][]Privilege // "TYPE:name" -> privileges
}

// New wires a Manager over cat. Call Rehydrate once at startup before
// serving any permission check (spec.md §4.9).
func New(cat *catalog.Catalog) *Manager {
	return &Manager{catalog: cat, cache: make(map[string][]Privilege)}
}

func cacheKey(granteeType, granteeName string) string { return granteeType + ":" + granteeName }

// Rehydrate reloads the privilege cache from sys_privileges (spec.md §4.9
// "Startup reconstructs the cache from sys_privileges").
func (m *Manager) Rehydrate() error {
	rows, err := m.catalog.AllPrivileges()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string][]Privilege)
	for _, r := range rows {
		p := Privilege{
			GranteeType: r.Values[1].S,
			GranteeName: r.Values[2].S,
			Database:    r.Values[3].S,
			Table:       r.Values[4].S,
			Action:      r.Values[5].S,
			Grantor:     r.Values[6].S,
		}
		key := cacheKey(p.GranteeType, p.GranteeName)
		m.cache[key] = append(m.cache[key], p)
	}
	return nil
}

// HashPassword produces the stored form of a plaintext password. Grounded
// on the teacher's idgen/hash.go use of crypto/sha256 for deterministic,
// dependency-free hashing — this is not a slow KDF, matching the ambient
// idiom rather than introducing bcrypt/argon2 the pack never references.
func HashPassword(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// CreateUser persists a new user with a hashed password.
func (m *Manager) CreateUser(txnID wal.TxnID, username, plaintext string) (uint64, error) {
	return m.catalog.CreateUser(txnID, username, HashPassword(plaintext))
}

// DropUser removes a user and evicts its cached privileges. Refuses to drop
// the superuser account.
func (m *Manager) DropUser(txnID wal.TxnID, username string) error {
	if username == Superuser {
		return errs.New("auth", errs.CodePermissionDenied, errs.LevelError, "cannot drop the superuser account", "")
	}
	if err := m.catalog.DropUser(txnID, username); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, cacheKey(catalog.GranteeUser, username))
	m.mu.Unlock()
	return nil
}

// AlterPassword updates username's stored password hash.
func (m *Manager) AlterPassword(txnID wal.TxnID, username, plaintext string) error {
	return m.catalog.SetPassword(txnID, username, HashPassword(plaintext))
}

// Authenticate reports whether plaintext matches username's stored hash.
// Returns (false, nil) for an unknown user rather than an error — callers
// should not distinguish "no such user" from "wrong password".
func (m *Manager) Authenticate(username, plaintext string) (bool, error) {
	row, ok, err := m.catalog.FindUser(username)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if row.Values[3].I == 0 { // active flag
		return false, nil
	}
	return row.Values[2].S == HashPassword(plaintext), nil
}

// Grant persists a new privilege and updates the cache within the same call
// (spec.md §4.9 "every grant/revoke updates both the cache and
// sys_privileges within the same statement").
func (m *Manager) Grant(txnID wal.TxnID, granteeType, granteeName, database, tbl, action, grantor string) error {
	if err := m.catalog.Grant(txnID, granteeType, granteeName, database, tbl, action, grantor); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cacheKey(granteeType, granteeName)
	m.cache[key] = append(m.cache[key], Privilege{granteeType, granteeName, database, tbl, action, grantor})
	return nil
}

// Revoke removes a privilege from both sys_privileges and the cache.
func (m *Manager) Revoke(txnID wal.TxnID, granteeType, granteeName, database, tbl, action string) error {
	if err := m.catalog.Revoke(txnID, granteeType, granteeName, database, tbl, action); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cacheKey(granteeType, granteeName)
	privs := m.cache[key]
	for i, p := range privs {
		if p.Database == database && p.Table == tbl && p.Action == action {
			m.cache[key] = append(privs[:i], privs[i+1:]...)
			break
		}
	}
	return nil
}

// CheckPermission reports whether username may perform action against
// database.table (spec.md §4.9 "Check rule"): the superuser always passes;
// otherwise a privilege matches when its database is "*" or the target
// database, its table is "*" or the target table, and its action is "ALL"
// or the requested action.
func (m *Manager) CheckPermission(username, database, tbl, action string) bool {
	if username == Superuser {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.cache[cacheKey(catalog.GranteeUser, username)] {
		if matches(p, database, tbl, action) {
			return true
		}
	}
	return false
}

func matches(p Privilege, database, tbl, action string) bool {
	if p.Database != catalog.Wildcard && p.Database != database {
		return false
	}
	if p.Table != catalog.Wildcard && p.Table != tbl {
		return false
	}
	return p.Action == "ALL" || p.Action == action
}
