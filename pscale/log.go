package pscale

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hermitcrab/config"
)

// Log tables
const (
	TableMemory    = "memory"
	TableChangelog = "changelog"
)

// DefaultIdentity owns entries when none is given
const DefaultIdentity = "0.1"

const maxCompactionLevel = 4

// Entry is one numbered log row.
type Entry struct {
	Number    int    `json:"number"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Summarizer rolls a complete group of entries into one summary text.
// An empty result leaves the slot open for a later attempt.
type Summarizer interface {
	Summarize(ctx context.Context, entries []Entry) (string, error)
}

// SummarizerFunc adapts a function to Summarizer
type SummarizerFunc func(ctx context.Context, entries []Entry) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, entries []Entry) (string, error) {
	return f(ctx, entries)
}

// PlainSummarizer joins the head of each entry. Used for the changelog.
var PlainSummarizer = SummarizerFunc(func(_ context.Context, entries []Entry) (string, error) {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = truncateRunes(e.Content, 100)
	}
	return strings.Join(parts, " | "), nil
})

// FormatBlock renders entries the way they are handed to an LLM summarizer.
func FormatBlock(entries []Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("[%d] %s", e.Number, e.Content)
	}
	return strings.Join(parts, "\n---\n")
}

// Log is a numbered log with logarithmic compaction. Numbers that are
// multiples of ten are summary slots and never hold raw entries.
type Log struct {
	db         *sql.DB
	table      string
	identity   string
	summarizer Summarizer
}

// OpenLog prepares table inside db.
func OpenLog(db *sql.DB, table, identity string, summarizer Summarizer) (*Log, error) {
	if table != TableMemory && table != TableChangelog {
		return nil, fmt.Errorf("unknown log table: %s", table)
	}
	if identity == "" {
		identity = DefaultIdentity
	}
	if summarizer == nil {
		summarizer = PlainSummarizer
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL DEFAULT '0.1',
		number INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%s_identity_number ON %s(identity, number);
	`, table, table, table)
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", table, err)
	}

	return &Log{db: db, table: table, identity: identity, summarizer: summarizer}, nil
}

// Write appends content and then fills any summary slots that became
// complete. Compaction failures are logged, the entry stays written.
func (l *Log) Write(ctx context.Context, content string) (int, error) {
	n, err := l.Append(content)
	if err != nil {
		return 0, err
	}
	if err := l.CheckCompaction(ctx); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Log] %s compaction failed: %v", l.table, err)
	}
	return n, nil
}

// Append stores a raw entry at the next non-summary number.
func (l *Log) Append(content string) (int, error) {
	var highest sql.NullInt64
	err := l.db.QueryRow(
		fmt.Sprintf(`SELECT MAX(number) FROM %s WHERE identity = ?`, l.table), l.identity,
	).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s numbers: %w", l.table, err)
	}

	n := int(highest.Int64) + 1
	for n%10 == 0 {
		n++
	}
	if err := l.insert(n, content); err != nil {
		return 0, err
	}
	return n, nil
}

func (l *Log) insert(n int, content string) error {
	_, err := l.db.Exec(
		fmt.Sprintf(`INSERT INTO %s (identity, number, content, created_at) VALUES (?, ?, ?, ?)`, l.table),
		l.identity, n, content, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s #%d: %w", l.table, n, err)
	}
	return nil
}

// CheckCompaction writes every summary slot, up to the ten-thousands,
// whose nine source entries all exist.
func (l *Log) CheckCompaction(ctx context.Context) error {
	numbers, err := l.numbers()
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		return nil
	}
	highest := 0
	for n := range numbers {
		highest = max(highest, n)
	}

	for level := 1; level <= maxCompactionLevel; level++ {
		base := pow10(level)
		sub := base / 10
		for slot := base; slot < highest+base; slot += base {
			if numbers[slot] {
				continue
			}
			needed := compactionSources(slot, sub)
			if !containsAll(numbers, needed) {
				continue
			}

			entries, err := l.entries(needed)
			if err != nil {
				return err
			}
			summary, err := l.summarizer.Summarize(ctx, entries)
			if err != nil {
				return fmt.Errorf("failed to summarize #%d: %w", slot, err)
			}
			if summary == "" {
				continue
			}
			if err := l.insert(slot, summary); err != nil {
				return err
			}
			numbers[slot] = true
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Log] %s compacted #%d (level %d)", l.table, slot, level)
			}
		}
	}
	return nil
}

// compactionSources lists the nine entries the summary at slot rolls up.
func compactionSources(slot, sub int) []int {
	needed := make([]int, 0, 9)
	if sub == 1 {
		for n := slot - 9; n < slot; n++ {
			needed = append(needed, n)
		}
		return needed
	}
	for n := slot - 9*sub; n < slot; n += sub {
		needed = append(needed, n)
	}
	return needed
}

func containsAll(set map[int]bool, nums []int) bool {
	for _, n := range nums {
		if !set[n] {
			return false
		}
	}
	return true
}

func (l *Log) numbers() (map[int]bool, error) {
	rows, err := l.db.Query(fmt.Sprintf(`SELECT number FROM %s WHERE identity = ?`, l.table), l.identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s numbers: %w", l.table, err)
	}
	defer rows.Close()

	numbers := make(map[int]bool)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers[n] = true
	}
	return numbers, rows.Err()
}

func (l *Log) entries(numbers []int) ([]Entry, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(numbers)), ",")
	args := []any{l.identity}
	for _, n := range numbers {
		args = append(args, n)
	}
	return l.query(fmt.Sprintf(
		`SELECT number, content, created_at FROM %s WHERE identity = ? AND number IN (%s) ORDER BY number`,
		l.table, placeholders), args...)
}

// Read returns the entry at number, or every entry when number is 0.
func (l *Log) Read(number int) ([]Entry, error) {
	if number == 0 {
		return l.query(fmt.Sprintf(
			`SELECT number, content, created_at FROM %s WHERE identity = ? ORDER BY number`, l.table), l.identity)
	}
	return l.query(fmt.Sprintf(
		`SELECT number, content, created_at FROM %s WHERE identity = ? AND number = ?`, l.table), l.identity, number)
}

// ListLevel previews entries of one compaction level. Level 0 is raw
// entries, level k the summaries at multiples of 10^k. A negative level
// lists everything.
func (l *Log) ListLevel(level int) ([]Entry, error) {
	where := ""
	switch {
	case level == 0:
		where = " AND number % 10 != 0"
	case level > 0:
		base := pow10(level)
		where = fmt.Sprintf(" AND number %% %d = 0 AND number %% %d != 0", base, base*10)
	}
	return l.query(fmt.Sprintf(
		`SELECT number, substr(content, 1, 200), created_at FROM %s WHERE identity = ?%s ORDER BY number`,
		l.table, where), l.identity)
}

func (l *Log) query(q string, args ...any) ([]Entry, error) {
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", l.table, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Number, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
