package entity

import "context"

// WithPool makes NewPostgres use pool instead of dialing.
func WithPool(pool dbPool) Options {
	return func(o *options) {
		o.newPool = func(context.Context, string) (dbPool, error) { return pool, nil }
	}
}

type DBPool = dbPool

var MigrateURL = migrateURL
