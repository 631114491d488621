package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request-scoped context.Context with an optional
// transaction handle, so repo methods can participate in a caller's
// transaction without a separate "tx" parameter on every call.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
