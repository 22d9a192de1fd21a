package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/medgrain/clinctx"
	"github.com/medgrain/clinctx/helper"
	"github.com/medgrain/clinctx/model"
)

const dischargeSummary = `Chief Complaint: Follow-up of type 2 diabetes mellitus and hypertension.

History of Present Illness:
The patient is a 58-year-old with type 2 diabetes diagnosed in 2018.
Glycemic control has improved since starting metformin 500mg twice daily.
Blood pressure remains mildly elevated despite lisinopril 10mg daily.

Assessment and Plan:
1. Type 2 diabetes: continue metformin, recheck HbA1c in 3 months.
2. Hypertension: increase lisinopril to 20mg daily, home BP log.
3. Hyperlipidemia: continue atorvastatin 20mg nightly.`

const progressNote = `Progress Note:
Patient reports good medication adherence and no hypoglycemic episodes.
Home blood pressure readings average 132/84.
Labs reviewed: HbA1c 7.2% (improved from 8.1%), potassium 4.1 mmol/L.
Plan: continue current regimen, repeat labs in 3 months.`

func main() {
	// Load DB_* variables from a .env file if one exists; otherwise fall back
	// to a throwaway test container so the example runs standalone
	_ = godotenv.Load()

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Println("No database configuration in environment, starting a test container")

		teardown, dbPort, err := helper.MustStartPostgresContainer()
		if err != nil {
			log.Fatalf("Failed to start PostgreSQL container: %v", err)
		}
		defer func() {
			if err := teardown(context.Background()); err != nil {
				log.Printf("Failed to terminate container: %v", err)
			}
		}()

		dbConfig = &helper.DatabaseConfiguration{
			Host:     "localhost",
			Port:     dbPort,
			User:     "clinctx",
			Password: "clinctx",
			Name:     "clinctx_test",
			SSLMode:  "disable",
		}
	}

	engine, err := clinctx.NewEngine(dbConfig, model.DefaultEngineConfig())
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	if err := engine.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}
	if err := engine.UseDefaultEntityTagger(); err != nil {
		log.Printf("Entity tagger unavailable, ingesting without entity metadata: %v", err)
	}

	patientRID := uuid.New()

	// Ingest two narrative records
	dischargeDate := time.Now().AddDate(0, -3, 0)
	numChunks, err := engine.ProcessAndInsertRecord(dischargeSummary, patientRID, model.SourceDocument, "discharge-2025-001", &dischargeDate)
	if err != nil {
		log.Fatalf("Failed to ingest discharge summary: %v", err)
	}
	fmt.Printf("Ingested discharge summary as %d chunks\n", numChunks)

	noteDate := time.Now().AddDate(0, 0, -14)
	numChunks, err = engine.ProcessAndInsertRecord(progressNote, patientRID, model.SourceEncounter, "visit-2025-014", &noteDate)
	if err != nil {
		log.Fatalf("Failed to ingest progress note: %v", err)
	}
	fmt.Printf("Ingested progress note as %d chunks\n", numChunks)

	// Structured data feeds the third retrieval channel
	medications := []*model.Medication{
		{PatientRID: patientRID, Name: "Metformin", Dosage: "500mg", Frequency: "twice daily"},
		{PatientRID: patientRID, Name: "Lisinopril", Dosage: "20mg", Frequency: "once daily"},
		{PatientRID: patientRID, Name: "Atorvastatin", Dosage: "20mg", Frequency: "nightly"},
	}
	for _, medication := range medications {
		if err := engine.Medications.InsertMedication(medication); err != nil {
			log.Fatalf("Failed to insert medication: %v", err)
		}
	}

	resultedAt := time.Now().AddDate(0, 0, -14)
	lab := &model.LabResult{
		PatientRID: patientRID,
		TestName:   "HbA1c",
		Value:      "7.2",
		Unit:       "%",
		RefRange:   "4.0-5.6",
		Abnormal:   true,
		ResultedAt: &resultedAt,
	}
	if err := engine.Labs.InsertLabResult(lab); err != nil {
		log.Fatalf("Failed to insert lab result: %v", err)
	}

	// Ask questions against the ingested record
	questions := []string{
		"What medications is the patient currently taking?",
		"What was the most recent HbA1c?",
		"How has the blood pressure changed over time?",
	}

	ctx := context.Background()
	for _, question := range questions {
		fmt.Printf("\n=== %s ===\n", question)

		result, err := engine.GetContext(ctx, question, patientRID, clinctx.ContextOptions{
			MaxResults: 5,
			MaxTokens:  800,
		})
		if err != nil {
			log.Fatalf("Failed to get context: %v", err)
		}

		fmt.Printf("Intent: %s (confidence %.2f)\n", result.Analysis.Intent, result.Analysis.Confidence)

		routed := engine.Route(question, nil)
		profile := engine.DecodingProfile(question, routed.Task, result.Analysis.Intent)
		fmt.Printf("Task: %s, decoding profile: %s (temperature %.1f)\n", routed.Task, profile.Label, profile.Temperature)

		fmt.Printf("Context (%d tokens from %d chunks):\n%s\n", result.Synthesized.TotalTokens, result.Synthesized.TotalChunksUsed, result.Synthesized.FullContext)

		for _, entry := range result.Ranked {
			fmt.Printf("  [%.3f] %s: %s\n", entry.FinalScore, entry.Result.SourceType, entry.Reasoning)
		}
	}
}
