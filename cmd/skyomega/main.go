// Command skyomega is a minimal CLI over pkg/store: insert triples, run a
// pattern query, print store statistics, or reclaim orphan pages against a
// data directory on disk. It exists to exercise the store end to end, not as a
// full query language front end.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"strings"

	"github.com/bemafred/sky-omega/pkg/index"
	omegalog "github.com/bemafred/sky-omega/pkg/log"
	"github.com/bemafred/sky-omega/pkg/store"
)

func main() {
	stdlog.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "insert":
		runInsert(args)
	case "query":
		runQuery(args)
	case "stats":
		runStats(args)
	case "scrub":
		runScrub(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: skyomega <command> [flags]

commands:
  insert  -data-dir DIR -s SUBJECT -p PREDICATE -o OBJECT [-g GRAPH]
  query   -data-dir DIR [-s SUBJECT] [-p PREDICATE] [-o OBJECT]
  stats   -data-dir DIR
  scrub   -data-dir DIR`)
}

func openStore(dataDir string, temporal bool) *store.Store {
	omegalog.Init(omegalog.Config{Level: omegalog.InfoLevel})
	s, err := store.Open(dataDir, store.Options{Temporal: temporal})
	if err != nil {
		stdlog.Fatalf("open store at %s: %v", dataDir, err)
	}
	return s
}

func runInsert(args []string) {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "data directory (required)")
	subject := fs.String("s", "", "subject term (required)")
	predicate := fs.String("p", "", "predicate term (required)")
	object := fs.String("o", "", "object term (required)")
	graph := fs.String("g", "", "named graph (optional)")
	fs.Parse(args)

	if *dataDir == "" || *subject == "" || *predicate == "" || *object == "" {
		fs.Usage()
		os.Exit(2)
	}

	s := openStore(*dataDir, false)
	defer s.Close()

	var g []byte
	if *graph != "" {
		g = []byte(*graph)
	}
	if err := s.InsertTriple([]byte(*subject), []byte(*predicate), []byte(*object), g); err != nil {
		stdlog.Fatalf("insert: %v", err)
	}
	fmt.Println("inserted")
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "data directory (required)")
	subject := fs.String("s", "", "bound subject term")
	predicate := fs.String("p", "", "bound predicate term")
	object := fs.String("o", "", "bound object term")
	fs.Parse(args)

	if *dataDir == "" {
		fs.Usage()
		os.Exit(2)
	}

	s := openStore(*dataDir, false)
	defer s.Close()

	pat := index.Pattern{}
	bindTerm(s, *subject, &pat.Subject)
	bindTerm(s, *predicate, &pat.Predicate)
	bindTerm(s, *object, &pat.Object)

	it, err := s.Query(pat)
	if err != nil {
		stdlog.Fatalf("query: %v", err)
	}
	defer it.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	ctx := context.Background()
	for it.Advance(ctx) {
		r := it.Current()
		s1, _ := s.TermOf(r.Subject)
		p1, _ := s.TermOf(r.Predicate)
		o1, _ := s.TermOf(r.Object)
		fmt.Fprintf(w, "%s %s %s .\n", s1, p1, o1)
	}
	if err := it.Err(); err != nil {
		stdlog.Fatalf("query iteration: %v", err)
	}
}

// bindTerm resolves term if non-empty and stores its atom into *dst, or
// leaves *dst nil (the wildcard) if term is empty or was never interned.
func bindTerm(s *store.Store, term string, dst **uint32) {
	if term == "" {
		return
	}
	atom, ok := s.ResolveTerm([]byte(term))
	if !ok {
		return
	}
	*dst = &atom
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "data directory (required)")
	fs.Parse(args)

	if *dataDir == "" {
		fs.Usage()
		os.Exit(2)
	}

	s := openStore(*dataDir, true)
	defer s.Close()

	stats := s.Statistics()
	fmt.Printf("triples:      %d\n", stats.Triples)
	fmt.Printf("atoms:        %d (%d bytes)\n", stats.Atoms.Count, stats.Atoms.Bytes)
	fmt.Printf("orphan pages: %d\n", stats.OrphanPages)
	if len(stats.TemporalCounts) > 0 {
		fmt.Println("temporal versions:")
		var rotations []string
		for rotation := range stats.TemporalCounts {
			rotations = append(rotations, rotation)
		}
		sortStrings(rotations)
		for _, rotation := range rotations {
			fmt.Printf("  %-4s %d\n", strings.ToUpper(rotation), stats.TemporalCounts[rotation])
		}
	}
}

func runScrub(args []string) {
	fs := flag.NewFlagSet("scrub", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "data directory (required)")
	fs.Parse(args)

	if *dataDir == "" {
		fs.Usage()
		os.Exit(2)
	}

	s, err := store.Open(*dataDir, store.Options{Temporal: true, DisableScrub: true})
	if err != nil {
		stdlog.Fatalf("open store: %v", err)
	}
	defer s.Close()

	reclaimed, err := s.ScrubOnce()
	if err != nil {
		stdlog.Fatalf("scrub: %v", err)
	}
	fmt.Printf("reclaimed %d orphan pages\n", reclaimed)
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}
