package pscale

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"hermitcrab/storage"
)

// Prefix namespaces coordinates inside the shared KV store
const Prefix = "ps:"

// MemoryNamespace is the tag of numbered memory coordinates
const MemoryNamespace = "M:"

// Well-known coordinates
const (
	CoordIndex        = "S:0.1"
	CoordKernel       = "S:0.11"
	CoordConstitution = "S:0.12"
	CoordRelay        = "S:0.13"
	CoordInterface    = "S:0.2"
)

var versionPattern = regexp.MustCompile(`^S:0\.2\d+$`)

// Kind classifies the next memory coordinate
type Kind string

const (
	KindEntry   Kind = "entry"
	KindSummary Kind = "summary"
)

// Next describes where the next memory goes. Summarize lists the
// coordinates a summary slot rolls up.
type Next struct {
	Kind      Kind     `json:"type"`
	Coord     string   `json:"coord"`
	Summarize []string `json:"summarize,omitempty"`
}

// Store is the coordinate-indexed memory over the KV store.
type Store struct {
	kv storage.KV
}

func New(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Read returns the content at coord and whether it exists.
func (s *Store) Read(coord string) (string, bool, error) {
	return s.kv.Get(Prefix + coord)
}

// Write stores content at coord and returns coord.
func (s *Store) Write(coord, content string) (string, error) {
	if err := s.kv.Set(Prefix+coord, content); err != nil {
		return "", err
	}
	return coord, nil
}

func (s *Store) Delete(coord string) (string, error) {
	if err := s.kv.Delete(Prefix + coord); err != nil {
		return "", err
	}
	return coord, nil
}

// List returns coordinates starting with prefix in lexicographic order.
func (s *Store) List(prefix string) ([]string, error) {
	keys, err := s.kv.Keys(Prefix + prefix)
	if err != nil {
		return nil, err
	}
	coords := make([]string, 0, len(keys))
	for _, k := range keys {
		coords = append(coords, strings.TrimPrefix(k, Prefix))
	}
	sort.Strings(coords)
	return coords, nil
}

// NextMemory picks the coordinate after the highest numbered memory.
func (s *Store) NextMemory() (Next, error) {
	coords, err := s.List(MemoryNamespace)
	if err != nil {
		return Next{}, err
	}

	highest, found := 0, false
	for _, c := range coords {
		n, ok := memoryIndex(c)
		if !ok {
			continue
		}
		if !found || n > highest {
			highest, found = n, true
		}
	}
	if !found {
		return Next{Kind: KindEntry, Coord: MemoryNamespace + "1"}, nil
	}

	next := highest + 1
	coord := MemoryNamespace + strconv.Itoa(next)
	if IsSummary(next) {
		return Next{Kind: KindSummary, Coord: coord, Summarize: SummaryRange(next)}, nil
	}
	return Next{Kind: KindEntry, Coord: coord}, nil
}

// IsSummary reports whether n has more than one digit and only zeros
// after the first.
func IsSummary(n int) bool {
	digits := strconv.Itoa(n)
	return len(digits) > 1 && strings.Trim(digits[1:], "0") == ""
}

// SummaryRange lists the coordinates rolled up by the summary at s.
// The tens level takes every raw entry of the decade; higher levels step
// by a tenth of their magnitude.
func SummaryRange(s int) []string {
	mag := pow10(len(strconv.Itoa(s)) - 1)
	base := s - mag

	var coords []string
	if mag == 10 {
		for i := base + 1; i < s; i++ {
			coords = append(coords, MemoryNamespace+strconv.Itoa(i))
		}
		return coords
	}
	step := mag / 10
	if step == 0 {
		return nil
	}
	for i := base + step; i < s; i += step {
		coords = append(coords, MemoryNamespace+strconv.Itoa(i))
	}
	return coords
}

// ContextChain returns the round-number ancestors of coord, from its own
// magnitude down to the tens, skipping zero and duplicates.
func ContextChain(coord string) []string {
	n, ok := memoryIndex(coord)
	if !ok {
		return nil
	}

	var chain []string
	seen := make(map[int]bool)
	for d := len(strconv.Itoa(n)); d >= 2; d-- {
		mag := pow10(d - 1)
		rounded := n / mag * mag
		if rounded <= 0 || seen[rounded] {
			continue
		}
		seen[rounded] = true
		chain = append(chain, MemoryNamespace+strconv.Itoa(rounded))
	}
	return chain
}

// ContextContent resolves the chain to the entries that exist.
func (s *Store) ContextContent(coord string) (map[string]string, error) {
	result := make(map[string]string)
	for _, c := range ContextChain(coord) {
		content, ok, err := s.Read(c)
		if err != nil {
			return nil, err
		}
		if ok {
			result[c] = content
		}
	}
	return result, nil
}

// Versions lists the interface history coordinates S:0.21, S:0.22, ...
func (s *Store) Versions() ([]string, error) {
	coords, err := s.List(CoordInterface)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, c := range coords {
		if versionPattern.MatchString(c) {
			versions = append(versions, c)
		}
	}
	return versions, nil
}

func memoryIndex(coord string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(coord, MemoryNamespace))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func pow10(e int) int {
	p := 1
	for range e {
		p *= 10
	}
	return p
}
