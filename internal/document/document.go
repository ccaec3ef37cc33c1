// Package document defines the chunk model and the loader boundary for
// parsed annual-report text. PDF/OCR conversion happens upstream; this
// package only consumes its text or JSON output.
package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Section is one of the fixed report categories a chunk can route to.
type Section string

const (
	SectionLetterToShareholders Section = "letter_to_shareholders"
	SectionMDNA                 Section = "mdna"
	SectionFinancialStatements  Section = "financial_statements"
	SectionAuditReport          Section = "audit_report"
	SectionCorporateGovernance  Section = "corporate_governance"
	SectionSDG17                Section = "sdg_17"
	SectionESG                  Section = "esg"
	SectionOther                Section = "other"
)

// Sections lists every section in routing order.
func Sections() []Section {
	return []Section{
		SectionLetterToShareholders,
		SectionMDNA,
		SectionFinancialStatements,
		SectionAuditReport,
		SectionCorporateGovernance,
		SectionSDG17,
		SectionESG,
		SectionOther,
	}
}

// Chunk is a bounded slice of document text. Immutable once ingested; the
// orchestrator tracks processing state separately.
type Chunk struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	SectionHint Section           `json:"section_hint,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LoadParsedChunks loads the parsed document from outputDir (first .md file,
// falling back to the first .json file) and splits it into line-packed
// chunks of at most maxChunkChars characters. Returns an empty slice when
// nothing parseable exists.
func LoadParsedChunks(outputDir string, maxChunkChars int) ([]Chunk, error) {
	if maxChunkChars <= 0 {
		return nil, fmt.Errorf("max chunk chars must be positive, got %d", maxChunkChars)
	}

	content, source, err := readParsedDocument(outputDir)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, nil
	}

	return SplitChunks(content, maxChunkChars, source), nil
}

// SplitChunks packs lines into chunks no larger than maxChunkChars. A single
// line longer than the limit becomes its own chunk rather than being split
// mid-line.
func SplitChunks(content string, maxChunkChars int, source string) []Chunk {
	var chunks []Chunk
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, "\n")
		chunks = append(chunks, Chunk{
			ID:          fmt.Sprintf("chunk_%d", len(chunks)),
			Content:     text,
			SectionHint: GuessSection(text),
			Metadata:    map[string]string{"source": source},
		})
		current = nil
		currentLen = 0
	}

	for _, line := range strings.Split(content, "\n") {
		lineLen := len(line) + 1
		if currentLen+lineLen > maxChunkChars && len(current) > 0 {
			flush()
		}
		current = append(current, line)
		currentLen += lineLen
	}
	flush()

	return chunks
}

// GuessSection routes text to a report section by keyword. Returns the empty
// section when no marker matches; callers decide the fallback.
func GuessSection(text string) Section {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "letter to shareholders") || strings.Contains(lower, "letter from the ceo"):
		return SectionLetterToShareholders
	case strings.Contains(lower, "management's discussion") || strings.Contains(lower, "md&a") || strings.Contains(lower, "mdna"):
		return SectionMDNA
	case strings.Contains(lower, "financial statements") || strings.Contains(lower, "balance sheet") || strings.Contains(lower, "income statement"):
		return SectionFinancialStatements
	case strings.Contains(lower, "audit report") || strings.Contains(lower, "auditors' report"):
		return SectionAuditReport
	case strings.Contains(lower, "corporate governance"):
		return SectionCorporateGovernance
	case strings.Contains(lower, "sdg 17") || strings.Contains(lower, "partnerships for the goals"):
		return SectionSDG17
	case strings.Contains(lower, "esg") || strings.Contains(lower, "sustainability"):
		return SectionESG
	}
	return ""
}

// readParsedDocument finds the parsed source file and returns its text.
func readParsedDocument(outputDir string) (content, source string, err error) {
	if _, statErr := os.Stat(outputDir); os.IsNotExist(statErr) {
		return "", "", nil
	}

	mdFiles, err := filepath.Glob(filepath.Join(outputDir, "*.md"))
	if err != nil {
		return "", "", fmt.Errorf("failed to scan output dir: %w", err)
	}
	sort.Strings(mdFiles)
	if len(mdFiles) > 0 {
		data, err := os.ReadFile(mdFiles[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to read parsed document: %w", err)
		}
		return string(data), mdFiles[0], nil
	}

	jsonFiles, err := filepath.Glob(filepath.Join(outputDir, "*.json"))
	if err != nil {
		return "", "", fmt.Errorf("failed to scan output dir: %w", err)
	}
	sort.Strings(jsonFiles)
	if len(jsonFiles) > 0 {
		data, err := os.ReadFile(jsonFiles[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to read parsed document: %w", err)
		}
		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			return "", "", nil
		}
		flat, err := json.Marshal(parsed)
		if err != nil {
			return "", "", nil
		}
		return string(flat), jsonFiles[0], nil
	}

	return "", "", nil
}
