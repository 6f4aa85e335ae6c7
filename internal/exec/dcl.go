package exec

import (
	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/auth"
	"github.com/ridgedb/ridgedb/internal/catalog"
	"github.com/ridgedb/ridgedb/internal/errs"
)

// dclStrategy is the DCL family of spec.md §4.7: CREATE/DROP USER, GRANT,
// REVOKE. The unified executor's step 2 already requires admin for every
// DCL kind, so this strategy's CheckPermission has nothing further to add.
type dclStrategy struct {
	auth Auth
}

func (d *dclStrategy) CheckPermission(ctx *ExecutionContext, stmt ast.Statement) error {
	return nil
}

func (d *dclStrategy) Validate(ctx *ExecutionContext, stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.CreateUserStmt:
		if s.Username == "" {
			return errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "username required", "")
		}
	case *ast.DropUserStmt:
		if s.Username == auth.Superuser {
			return errs.New("exec", errs.CodePermissionDenied, errs.LevelError, "cannot drop superuser", s.Username)
		}
	case *ast.GrantStmt:
		if len(s.Privileges) == 0 {
			return errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "at least one privilege required", "")
		}
	case *ast.RevokeStmt:
		if len(s.Privileges) == 0 {
			return errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "at least one privilege required", "")
		}
	}
	return nil
}

func (d *dclStrategy) Execute(ctx *ExecutionContext, stmt ast.Statement) (*ExecutionResult, *ResultSet, error) {
	txnID := currentTxnID(ctx)

	switch s := stmt.(type) {
	case *ast.CreateUserStmt:
		if _, err := d.auth.CreateUser(txnID, s.Username, s.Password); err != nil {
			return nil, nil, err
		}
		return &ExecutionResult{Success: true, Message: "user created"}, nil, nil

	case *ast.DropUserStmt:
		if err := d.auth.DropUser(txnID, s.Username); err != nil {
			if s.IfExists {
				return &ExecutionResult{Success: true, Message: "user does not exist, skipped"}, nil, nil
			}
			return nil, nil, err
		}
		return &ExecutionResult{Success: true, Message: "user dropped"}, nil, nil

	case *ast.GrantStmt:
		db, tbl := grantTargetOrWildcard(s.On)
		for _, priv := range s.Privileges {
			if err := d.auth.Grant(txnID, catalog.GranteeUser, s.Grantee, db, tbl, priv, ctx.User); err != nil {
				return nil, nil, err
			}
		}
		return &ExecutionResult{Success: true, Message: "privileges granted"}, nil, nil

	case *ast.RevokeStmt:
		db, tbl := grantTargetOrWildcard(s.On)
		for _, priv := range s.Privileges {
			if err := d.auth.Revoke(txnID, catalog.GranteeUser, s.Grantee, db, tbl, priv); err != nil {
				return nil, nil, err
			}
		}
		return &ExecutionResult{Success: true, Message: "privileges revoked"}, nil, nil
	}

	return nil, nil, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "unsupported DCL statement", "")
}

func grantTargetOrWildcard(t ast.GrantTarget) (db, tbl string) {
	db, tbl = t.Database, t.Table
	if db == "" {
		db = catalog.Wildcard
	}
	if tbl == "" {
		tbl = catalog.Wildcard
	}
	return db, tbl
}
