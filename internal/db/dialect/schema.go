package dialect

// AutoIncrementPK returns the column definition for an auto-incrementing
// integer primary key.
//
//	SQLite:   INTEGER PRIMARY KEY AUTOINCREMENT
//	Postgres: BIGSERIAL PRIMARY KEY
func AutoIncrementPK(driver string) string {
	if IsPostgres(driver) {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}
