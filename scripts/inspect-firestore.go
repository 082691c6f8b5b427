//go:build ignore

// Lists the collection dates archived by "collecte run --archive-project".
//
// Usage: go run scripts/inspect-firestore.go -project my-project -address "1000 rue Principale"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

func main() {
	projectID := flag.String("project", "", "GCP project ID")
	collection := flag.String("collection", "collectes", "Firestore collection name")
	address := flag.String("address", "", "Filter by address (optional)")
	category := flag.String("category", "", "Filter by category, e.g. ordures (optional)")
	countOnly := flag.Bool("count", false, "Only show counts per address and category")
	flag.Parse()

	if *projectID == "" {
		log.Fatal("-project is required")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer client.Close()

	coll := client.Collection(*collection)

	var query firestore.Query = coll.Query
	if *address != "" {
		query = query.Where("address", "==", *address)
	}
	if *category != "" {
		query = query.Where("category", "==", *category)
	}

	// address -> category -> dates
	dates := make(map[string]map[string][]string)
	iter := query.Documents(ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Fatalf("Error iterating documents: %v", err)
		}

		data := doc.Data()
		addr, _ := data["address"].(string)
		cat, _ := data["category"].(string)
		date, _ := data["date"].(string)
		if dates[addr] == nil {
			dates[addr] = make(map[string][]string)
		}
		dates[addr][cat] = append(dates[addr][cat], date)
	}

	for _, addr := range sortedKeys(dates) {
		fmt.Println(addr)
		for _, cat := range sortedKeys(dates[addr]) {
			ds := dates[addr][cat]
			sort.Strings(ds)
			if *countOnly {
				fmt.Printf("  %-20s %d\n", cat, len(ds))
				continue
			}
			fmt.Printf("  %s:\n", cat)
			for _, d := range ds {
				fmt.Printf("    %s\n", d)
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
