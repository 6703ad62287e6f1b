package store

import "database/sql"

// nullableRef maps an optional foreign key to NULL so the FK constraint is skipped when unset.
func nullableRef(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}
