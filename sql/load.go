package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed records.sql
var recordsSQL string

//go:embed medications.sql
var medicationsSQL string

//go:embed labs.sql
var labsSQL string

// Function lists for verification
var RecordsFunctions = []string{
	"init_records",
	"insert_record_chunk",
	"select_record_chunk",
	"select_record_chunks_by_patient",
	"select_record_chunks_by_similarity",
	"select_record_chunks_by_keywords",
	"delete_record_chunks_by_source",
}

var MedicationsFunctions = []string{
	"init_medications",
	"insert_medication",
	"select_medications_by_patient",
	"select_active_medications",
	"stop_medication",
	"delete_medication",
}

var LabsFunctions = []string{
	"init_labs",
	"insert_lab_result",
	"select_lab_results_by_patient",
	"select_abnormal_lab_results",
	"select_lab_results_by_test",
	"delete_lab_result",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadRecordsSql loads record-chunk-related SQL functions
func LoadRecordsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, RecordsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing records functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(recordsSQL)
	if err != nil {
		return fmt.Errorf("error executing records SQL: %w", err)
	}

	exist, err := checkFunctions(db, RecordsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL records functions loaded successfully")
	return nil
}

// LoadMedicationsSql loads medication-related SQL functions
func LoadMedicationsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, MedicationsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing medications functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(medicationsSQL)
	if err != nil {
		return fmt.Errorf("error executing medications SQL: %w", err)
	}

	exist, err := checkFunctions(db, MedicationsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL medications functions loaded successfully")
	return nil
}

// LoadLabsSql loads lab-result-related SQL functions
func LoadLabsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, LabsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing labs functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(labsSQL)
	if err != nil {
		return fmt.Errorf("error executing labs SQL: %w", err)
	}

	exist, err := checkFunctions(db, LabsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL labs functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadRecordsSql(db, force); err != nil {
		return err
	}

	if err := LoadMedicationsSql(db, force); err != nil {
		return err
	}

	if err := LoadLabsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
