package hierarchy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gilchrisn/cutcluster/pkg/graph"
)

// FileWriter writes a tree as plain-text files next to each other:
//
//	<prefix>.mapping    every cluster of the coarsest level and its original nodes
//	<prefix>.hierarchy  every cluster and the clusters (or nodes) it splits into
//	<prefix>.root       the clusters directly below the root
//
// Clusters are named c0_l<L>_<representative>, where L counts levels from
// the finest (1) up to the root.
type FileWriter struct {
	names *graph.Names
}

// NewFileWriter creates a writer that prints nodes by name.
func NewFileWriter(names *graph.Names) *FileWriter {
	return &FileWriter{names: names}
}

// WriteAll writes the three files under dir.
func (fw *FileWriter) WriteAll(t *Tree, dir, prefix string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	files := []struct {
		ext   string
		write func(io.Writer, *Tree) error
	}{
		{"mapping", fw.WriteMapping},
		{"hierarchy", fw.WriteHierarchy},
		{"root", fw.WriteRoot},
	}
	for _, f := range files {
		path := filepath.Join(dir, fmt.Sprintf("%s.%s", prefix, f.ext))
		if err := writeFile(path, t, f.write); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.ext, err)
		}
	}
	return nil
}

func writeFile(path string, t *Tree, write func(io.Writer, *Tree) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if err := write(w, t); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ClusterName returns the file identifier of a node.
func (t *Tree) ClusterName(n *Node) string {
	return fmt.Sprintf("c0_l%d_%d", len(t.Levels)-n.Level, n.ID)
}

// WriteMapping writes the clusters below the root with their original nodes.
func (fw *FileWriter) WriteMapping(w io.Writer, t *Tree) error {
	for _, n := range t.NodesAt(1) {
		members := t.Members(n)
		labels := make([]string, len(members))
		for i, u := range members {
			labels[i] = fw.names.Name(u)
		}
		sort.Strings(labels)

		if _, err := fmt.Fprintf(w, "%s\n%d\n", t.ClusterName(n), len(labels)); err != nil {
			return err
		}
		for _, label := range labels {
			if _, err := fmt.Fprintln(w, label); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteHierarchy writes every non-root cluster, coarsest level first, with
// its children. Children of the finest level are original nodes.
func (fw *FileWriter) WriteHierarchy(w io.Writer, t *Tree) error {
	for li := 1; li < len(t.Levels); li++ {
		for _, n := range t.NodesAt(li) {
			if _, err := fmt.Fprintf(w, "%s\n%d\n", t.ClusterName(n), len(n.Children)); err != nil {
				return err
			}
			for _, c := range sortedChildren(n) {
				label := t.ClusterName(c)
				if c.Kind == Leaf {
					label = fw.names.Name(c.ID)
				}
				if _, err := fmt.Fprintln(w, label); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// WriteRoot writes the clusters directly below the root.
func (fw *FileWriter) WriteRoot(w io.Writer, t *Tree) error {
	for _, c := range sortedChildren(t.Root) {
		if _, err := fmt.Fprintln(w, t.ClusterName(c)); err != nil {
			return err
		}
	}
	return nil
}

func sortedChildren(n *Node) []*Node {
	kids := append([]*Node(nil), n.Children...)
	sort.Slice(kids, func(i, j int) bool { return kids[i].ID < kids[j].ID })
	return kids
}
