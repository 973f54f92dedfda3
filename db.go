package main

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		mode       TEXT NOT NULL,
		stories    INTEGER NOT NULL DEFAULT 0,
		backlog    TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS story_results (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id                INTEGER NOT NULL,
		story_id              TEXT NOT NULL,
		historia              TEXT NOT NULL,
		sprint                TEXT DEFAULT '',
		prioridad             TEXT DEFAULT '',
		score_invest          REAL NOT NULL,
		estado_calidad        TEXT NOT NULL,
		estimacion_llm        REAL NOT NULL,
		metodo_llm            TEXT NOT NULL,
		estimacion_regresion  REAL NOT NULL,
		metodo_regresion      TEXT NOT NULL,
		diferencia_estimacion REAL NOT NULL,
		modo_evaluacion       TEXT NOT NULL,
		independiente         INTEGER NOT NULL DEFAULT 0,
		negociable            INTEGER NOT NULL DEFAULT 0,
		valiosa               INTEGER NOT NULL DEFAULT 0,
		estimable             INTEGER NOT NULL DEFAULT 0,
		small                 INTEGER NOT NULL DEFAULT 0,
		testeable             INTEGER NOT NULL DEFAULT 0,
		sugerencias           TEXT DEFAULT '',
		created_at            DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_story_results_run ON story_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_story_results_sprint ON story_results(sprint);

	CREATE TABLE IF NOT EXISTS model_state (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		state      BLOB NOT NULL,
		trained_at DATETIME NOT NULL
	);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func InsertRun(db *sql.DB, run PipelineRun) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO runs (started_at, mode, stories, backlog) VALUES (?, ?, ?, ?)`,
		run.StartedAt, run.Mode, run.Stories, run.Backlog,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func InsertStoryResults(db *sql.DB, runID int64, results []StoryResult) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO story_results (
			run_id, story_id, historia, sprint, prioridad,
			score_invest, estado_calidad,
			estimacion_llm, metodo_llm, estimacion_regresion, metodo_regresion,
			diferencia_estimacion, modo_evaluacion,
			independiente, negociable, valiosa, estimable, small, testeable,
			sugerencias
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range results {
		_, err := stmt.Exec(
			runID, r.ID, r.Text, r.Sprint, r.Priority,
			r.InvestScore, r.Quality,
			r.External.Hours, r.External.Source, r.Regression.Hours, r.Regression.Source,
			r.EstimateDiff, r.Mode,
			boolToInt(r.Verdicts[Independent]), boolToInt(r.Verdicts[Negotiable]),
			boolToInt(r.Verdicts[Valuable]), boolToInt(r.Verdicts[Estimable]),
			boolToInt(r.Verdicts[Small]), boolToInt(r.Verdicts[Testable]),
			strings.Join(r.Suggestions, " | "),
		)
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, tx.Commit()
}

// LoadStoryResults returns the stored results for one run, in
// insertion order.
func LoadStoryResults(db *sql.DB, runID int64) ([]StoryResult, error) {
	rows, err := db.Query(
		`SELECT story_id, historia, sprint, prioridad,
			score_invest, estado_calidad,
			estimacion_llm, metodo_llm, estimacion_regresion, metodo_regresion,
			diferencia_estimacion, modo_evaluacion,
			independiente, negociable, valiosa, estimable, small, testeable,
			sugerencias
		 FROM story_results WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StoryResult
	for rows.Next() {
		var r StoryResult
		var verdicts [6]int
		var suggestions string
		if err := rows.Scan(
			&r.ID, &r.Text, &r.Sprint, &r.Priority,
			&r.InvestScore, &r.Quality,
			&r.External.Hours, &r.External.Source, &r.Regression.Hours, &r.Regression.Source,
			&r.EstimateDiff, &r.Mode,
			&verdicts[0], &verdicts[1], &verdicts[2], &verdicts[3], &verdicts[4], &verdicts[5],
			&suggestions,
		); err != nil {
			return nil, err
		}
		r.Verdicts = make(map[Criterion]bool, len(CriteriaOrder))
		for i, c := range CriteriaOrder {
			r.Verdicts[c] = verdicts[i] != 0
		}
		if suggestions != "" {
			r.Suggestions = strings.Split(suggestions, " | ")
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveModelState stores the serialized trained model, replacing any
// previous one.
func SaveModelState(db *sql.DB, blob []byte) error {
	_, err := db.Exec(
		`INSERT INTO model_state (id, state, trained_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, trained_at = excluded.trained_at`,
		blob, time.Now().UTC(),
	)
	return err
}

// LoadModelState returns the stored model blob, or nil when no model
// has been trained yet.
func LoadModelState(db *sql.DB) ([]byte, error) {
	var blob []byte
	err := db.QueryRow(`SELECT state FROM model_state WHERE id = 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// ListRuns returns the most recent pipeline runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]PipelineRun, error) {
	rows, err := db.Query(
		`SELECT id, started_at, mode, stories, backlog FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []PipelineRun
	for rows.Next() {
		var run PipelineRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.Mode, &run.Stories, &run.Backlog); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
