package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"counselors":         "Counselor records",
		"counselor_students": "Students per counselor",
		"schema_migrations":  "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
func (v *SchemaValidator) ValidateTableStructure() error {
	counselorColumns := map[string]string{
		"id":         "TEXT",
		"name":       "TEXT",
		"created_at": "DATETIME",
	}
	if err := v.validateColumns("counselors", counselorColumns); err != nil {
		return fmt.Errorf("counselors table structure invalid: %w", err)
	}

	studentColumns := map[string]string{
		"seq":             "INTEGER",
		"counselor_id":    "TEXT",
		"student_id":      "TEXT",
		"last_message_at": "DATETIME",
	}
	if err := v.validateColumns("counselor_students", studentColumns); err != nil {
		return fmt.Errorf("counselor_students table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_counselor_students_counselor": "Ordered student list per counselor",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies the uniqueness and foreign key rules the store relies on
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	// every probe is rolled back
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT INTO counselor_students (counselor_id, student_id, last_message_at)
		VALUES ('__probe_missing__', 's', CURRENT_TIMESTAMP)`); err == nil {
		return fmt.Errorf("foreign key constraint not enforced: counselor_students.counselor_id")
	}

	if _, err := tx.Exec(`INSERT INTO counselors (id, name) VALUES ('__probe__', 'probe')`); err != nil {
		return fmt.Errorf("failed to create probe counselor: %w", err)
	}
	insert := `INSERT INTO counselor_students (counselor_id, student_id, last_message_at)
		VALUES ('__probe__', 's', CURRENT_TIMESTAMP)`
	if _, err := tx.Exec(insert); err != nil {
		return fmt.Errorf("failed to insert probe student: %w", err)
	}
	if _, err := tx.Exec(insert); err == nil {
		return fmt.Errorf("unique constraint not enforced: counselor_students(counselor_id, student_id)")
	}

	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
