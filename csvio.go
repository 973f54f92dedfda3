package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Backlogs arrive in the Azure DevOps export shape: ID and Title are
// mandatory, sprint and priority ride inside the Tags column
// ("Sprint3,Alta"). Historical datasets add Horas, Criterios_INVEST and
// optionally Tokens / Complejidad.

type csvTable struct {
	columns map[string]int
	rows    [][]string
}

func readCSVTable(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.TrimSpace(name)] = i
	}
	return &csvTable{columns: columns, rows: records[1:]}, nil
}

func (t *csvTable) requireColumns(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := t.columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (t *csvTable) get(row []string, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseTags extracts sprint and priority from a Tags cell.
func parseTags(tags string) (sprint, priority string) {
	for _, tag := range strings.Split(tags, ",") {
		tag = strings.TrimSpace(tag)
		switch {
		case strings.HasPrefix(tag, "Sprint"):
			sprint = strings.TrimSpace(strings.TrimPrefix(tag, "Sprint"))
		case tag == "Alta" || tag == "Media" || tag == "Baja":
			priority = tag
		}
	}
	return sprint, priority
}

// LoadBacklog reads a backlog CSV. A missing ID or Title column is a
// structural error and aborts the whole load.
func LoadBacklog(path string) ([]Story, error) {
	table, err := readCSVTable(path)
	if err != nil {
		return nil, err
	}
	if err := table.requireColumns("ID", "Title"); err != nil {
		return nil, fmt.Errorf("backlog %s: %w", path, err)
	}

	stories := make([]Story, 0, len(table.rows))
	for _, row := range table.rows {
		sprint, priority := parseTags(table.get(row, "Tags"))
		stories = append(stories, Story{
			ID:       table.get(row, "ID"),
			Text:     table.get(row, "Title"),
			Sprint:   sprint,
			Priority: priority,
		})
	}
	log.Printf("backlog loaded path=%s stories=%d", path, len(stories))
	return stories, nil
}

// LoadHistorical reads a labeled historical dataset for training.
func LoadHistorical(path string) ([]HistoricalStory, error) {
	table, err := readCSVTable(path)
	if err != nil {
		return nil, err
	}
	if err := table.requireColumns("Horas", "Criterios_INVEST"); err != nil {
		return nil, fmt.Errorf("historical data %s: %w", path, err)
	}
	_, hasTitle := table.columns["Title"]
	_, hasTokens := table.columns["Tokens"]
	if !hasTitle && !hasTokens {
		return nil, fmt.Errorf("historical data %s: needs a Title or Tokens column", path)
	}

	rows := make([]HistoricalStory, 0, len(table.rows))
	for i, row := range table.rows {
		hours, err := strconv.ParseFloat(table.get(row, "Horas"), 64)
		if err != nil {
			return nil, fmt.Errorf("historical data %s row %d: invalid Horas: %w", path, i+1, err)
		}
		criteria, err := strconv.Atoi(table.get(row, "Criterios_INVEST"))
		if err != nil {
			return nil, fmt.Errorf("historical data %s row %d: invalid Criterios_INVEST: %w", path, i+1, err)
		}
		tokens := 0
		if raw := table.get(row, "Tokens"); raw != "" {
			tokens, err = strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("historical data %s row %d: invalid Tokens: %w", path, i+1, err)
			}
		}
		rows = append(rows, HistoricalStory{
			Text:       table.get(row, "Title"),
			Tokens:     tokens,
			Hours:      hours,
			Criteria:   criteria,
			Complexity: table.get(row, "Complejidad"),
		})
	}
	log.Printf("historical data loaded path=%s rows=%d", path, len(rows))
	return rows, nil
}

// resultHeader is the flattened export layout: fixed columns, then one
// column per criterion, then the joined suggestions.
func resultHeader() []string {
	header := []string{
		"ID", "Historia", "Sprint", "Prioridad",
		"Score_INVEST", "Estado_Calidad",
		"Estimacion_LLM", "Estimacion_Regresion", "Diferencia_Estimacion",
		"Modo_Evaluacion",
	}
	for _, c := range CriteriaOrder {
		header = append(header, "INVEST_"+string(c))
	}
	return append(header, "Sugerencias")
}

func resultRow(result StoryResult) []string {
	row := []string{
		result.ID,
		result.Text,
		result.Sprint,
		result.Priority,
		fmt.Sprintf("%.2f", result.InvestScore),
		result.Quality,
		fmt.Sprintf("%.1f", result.External.Hours),
		fmt.Sprintf("%.1f", result.Regression.Hours),
		fmt.Sprintf("%.1f", result.EstimateDiff),
		result.Mode,
	}
	for _, c := range CriteriaOrder {
		if result.Verdicts[c] {
			row = append(row, "Sí")
		} else {
			row = append(row, "No")
		}
	}
	return append(row, strings.Join(result.Suggestions, " | "))
}

// ExportResults writes the flattened results CSV.
func ExportResults(results []StoryResult, path string) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to export")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(resultHeader()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, result := range results {
		if err := writer.Write(resultRow(result)); err != nil {
			return fmt.Errorf("writing row %s: %w", result.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	log.Printf("results exported path=%s rows=%d", path, len(results))
	return nil
}
