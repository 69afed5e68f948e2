package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/atsika/graphbolt"
)

// Command-line client: connects to a Bolt server, runs one query in
// auto-commit mode, and prints the records plus a final metrics report.
// Usage: go run ./cmd/graphbolt-cli -uri neo4j://localhost:7687 -query "MATCH (n) RETURN n LIMIT 10"
func main() {
	uriFlag := flag.String("uri", "bolt://localhost:7687", "Connection URI (bolt://, bolt+s://, neo4j://, ...)")
	queryFlag := flag.String("query", "RETURN 1 AS n", "Cypher query to run in auto-commit mode")
	databaseFlag := flag.String("database", "", "Database name (empty selects the server default)")
	usernameFlag := flag.String("username", "", "Basic auth username (empty uses no auth)")
	passwordFlag := flag.String("password", "", "Basic auth password")
	readFlag := flag.Bool("read", false, "Run in read mode instead of write mode")
	verboseFlag := flag.Bool("verbose", false, "Log driver internals to stderr")

	flag.Parse()

	auth := graphbolt.NoAuth()
	if *usernameFlag != "" {
		auth = graphbolt.BasicAuth(*usernameFlag, *passwordFlag, "")
	}

	metrics := graphbolt.NewDefaultMetrics()
	opts := []graphbolt.Option{graphbolt.WithMetrics(metrics)}
	if *verboseFlag {
		opts = append(opts, graphbolt.WithLogger(graphbolt.NewStdLoggerAt(graphbolt.LevelDebug)))
	}

	driver, err := graphbolt.NewDriver(*uriFlag, auth, opts...)
	if err != nil {
		log.Fatalf("graphbolt: new driver: %v", err)
	}
	defer driver.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatalf("graphbolt: verify connectivity: %v", err)
	}
	fmt.Printf("[graphbolt] connected to %s\n", *uriFlag)

	mode := graphbolt.AccessModeWrite
	if *readFlag {
		mode = graphbolt.AccessModeRead
	}
	session := driver.NewSession(*databaseFlag, mode)
	defer session.Close(ctx)

	cur, err := session.Run(ctx, *queryFlag, nil)
	if err != nil {
		log.Fatalf("graphbolt: run: %v", err)
	}
	fmt.Println(strings.Join(cur.Keys(), "\t"))

	count := 0
	for {
		rec, ok, err := cur.Next(ctx)
		if err != nil {
			log.Fatalf("graphbolt: next: %v", err)
		}
		if !ok {
			break
		}
		printRecord(rec)
		count++
	}
	fmt.Printf("[graphbolt] %d record(s)\n", count)
	if bms := session.LastBookmarks(); len(bms) > 0 {
		fmt.Printf("[graphbolt] bookmark: %s\n", strings.Join(bms, ","))
	}

	fmt.Println("\n=== DRIVER METRICS REPORT ===")
	fmt.Printf("Connections Created:   %d\n", metrics.GetConnectionsCreated())
	fmt.Printf("Connections Acquired:  %d\n", metrics.GetConnectionsAcquired())
	fmt.Printf("Connections Released:  %d\n", metrics.GetConnectionsReleased())
	fmt.Printf("Acquisition Timeouts:  %d\n", metrics.GetAcquisitionTimeouts())
	fmt.Printf("Liveness Failures:     %d\n", metrics.GetLivenessFailures())
	fmt.Printf("Routing Refreshes:     %d\n", metrics.GetRoutingTableRefreshes())
	fmt.Printf("Retry Attempts:        %d\n", metrics.GetRetryAttempts())
	fmt.Println("==============================")
}

func printRecord(fields []any) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%v", f)
	}
	fmt.Println(strings.Join(parts, "\t"))
}
