package graph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Names interns external identifiers as dense node indices. Index 0 is the
// drain.
type Names struct {
	byName map[string]int
	list   []string
}

// NewNames returns a table holding only the drain.
func NewNames() *Names {
	return &Names{
		byName: map[string]int{DrainName: Drain},
		list:   []string{DrainName},
	}
}

// Intern returns the index of name, assigning the next free one if needed.
func (n *Names) Intern(name string) int {
	if id, ok := n.byName[name]; ok {
		return id
	}
	id := len(n.list)
	n.byName[name] = id
	n.list = append(n.list, name)
	return id
}

// Lookup returns the index of name.
func (n *Names) Lookup(name string) (int, bool) {
	id, ok := n.byName[name]
	return id, ok
}

// Name returns the identifier of node id.
func (n *Names) Name(id int) string {
	if id < 0 || id >= len(n.list) {
		return fmt.Sprintf("unknown-%d", id)
	}
	return n.list[id]
}

// Len returns the number of nodes, drain included.
func (n *Names) Len() int { return len(n.list) }

// Dataset is a loaded interaction graph with its names and term table.
type Dataset struct {
	Graph *Directed
	Names *Names
	Terms TermTable
}

// LoadEdgeList reads a whitespace separated "src dst [weight]" edge list.
// Blank lines and lines starting with '#' are skipped; a missing weight
// counts as 1; self mentions are dropped.
func LoadEdgeList(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open edge list: %w", err)
	}
	defer file.Close()

	return ReadEdgeList(file)
}

// ReadEdgeList parses an edge list from r.
func ReadEdgeList(r io.Reader) (*Dataset, error) {
	names := NewNames()
	type edge struct {
		from, to int
		weight   float64
	}
	var edges []edge

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 fields, got %d", lineNo, len(parts))
		}
		if parts[0] == DrainName || parts[1] == DrainName {
			return nil, fmt.Errorf("line %d: %s is a reserved name", lineNo, DrainName)
		}

		weight := 1.0
		if len(parts) >= 3 {
			w, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid weight %q: %w", lineNo, parts[2], err)
			}
			weight = w
		}

		from := names.Intern(parts[0])
		to := names.Intern(parts[1])
		edges = append(edges, edge{from: from, to: to, weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read edge list: %w", err)
	}

	builder := NewBuilder(names.Len())
	for _, e := range edges {
		if err := builder.AddEdge(e.from, e.to, e.weight); err != nil {
			return nil, err
		}
	}

	return &Dataset{
		Graph: builder.Build(),
		Names: names,
		Terms: NewTermTable(names.Len()),
	}, nil
}

// LoadTerms fills the dataset's term table from a "node term [count]" file.
// Rows naming unknown nodes are ignored.
func (d *Dataset) LoadTerms(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open term table: %w", err)
	}
	defer file.Close()

	return d.ReadTerms(file)
}

// ReadTerms parses a term table from r.
func (d *Dataset) ReadTerms(r io.Reader) error {
	if len(d.Terms) < d.Names.Len() {
		d.Terms = NewTermTable(d.Names.Len())
	}

	return scanRows(r, func(lineNo int, parts []string) error {
		count := 1
		if len(parts) >= 3 {
			c, err := strconv.Atoi(parts[2])
			if err != nil {
				return fmt.Errorf("line %d: invalid count %q: %w", lineNo, parts[2], err)
			}
			count = c
		}
		if id, ok := d.Names.Lookup(parts[0]); ok {
			d.Terms.Add(id, parts[1], count)
		}
		return nil
	})
}

// LoadItems reads "node item" rows: the items (e.g. URLs) each node mentioned,
// repeats kept.
func (d *Dataset) LoadItems(path string) (map[int][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open item list: %w", err)
	}
	defer file.Close()

	return d.ReadItems(file)
}

// ReadItems parses an item list from r.
func (d *Dataset) ReadItems(r io.Reader) (map[int][]string, error) {
	items := make(map[int][]string)
	err := scanRows(r, func(_ int, parts []string) error {
		if id, ok := d.Names.Lookup(parts[0]); ok {
			items[id] = append(items[id], parts[1])
		}
		return nil
	})
	return items, err
}

func scanRows(r io.Reader, row func(lineNo int, parts []string) error) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return fmt.Errorf("line %d: expected at least 2 fields, got %d", lineNo, len(parts))
		}
		if err := row(lineNo, parts); err != nil {
			return err
		}
	}
	return scanner.Err()
}
