// Package schema 内嵌 Postgres 表结构，由 init-db 工具或 AUTO_MIGRATE 启动路径执行
package schema

import (
	"context"
	_ "embed"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/friendsofgo/errors"
)

//go:embed schema.sql
var SQL string

// Apply 执行建表语句，可重复执行
func Apply(ctx context.Context, execer boil.ContextExecutor) error {
	if _, err := execer.ExecContext(ctx, SQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}
