package ports

import "context"

// UnitOfWork draws the transaction boundary around a use case. One Execute
// call is one store transaction at REPEATABLE READ: fn returning nil commits,
// fn returning an error rolls everything back.
//
// The context passed to fn carries the transaction; every store call inside
// fn must use that context, not the outer one.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}
