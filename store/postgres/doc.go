// Package postgres implements store.Store on PostgreSQL using pgx/v5.
// Schema migrations are embedded SQL files applied in filename order.
package postgres
