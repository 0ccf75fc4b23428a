// Package sqlite persists demos and host port reservations in a SQLite
// database using the pure-Go modernc.org/sqlite driver.
package sqlite
