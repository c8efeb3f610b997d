// Package stores persists configuration runs in SQLite. It records one row
// per search run, every solver evaluation the search made and the run's
// lifecycle events. The schema is embedded and applied with Migrate.
package stores
