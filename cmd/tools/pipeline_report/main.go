package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/david/donorflow/internal/db"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	donorFlag := flag.String("donor", "", "donor id (uuid)")
	flag.Parse()

	donorID, err := uuid.Parse(*donorFlag)
	if err != nil {
		log.Fatalf("-donor must be a valid uuid: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT s.opportunity_key, s.state, s.updated_at,
		       (SELECT count(*) FROM events e
		        WHERE e.donor_id = s.donor_id AND e.opportunity_key = s.opportunity_key)
		FROM opportunity_states s
		WHERE s.donor_id = $1
		ORDER BY s.updated_at DESC
	`, donorID)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Opportunity", "State", "Events", "Updated"})

	for rows.Next() {
		var key, state string
		var updatedAt time.Time
		var eventCount int

		if err := rows.Scan(&key, &state, &updatedAt, &eventCount); err != nil {
			log.Printf("Scan error: %v", err)
			continue
		}

		t.AppendRow(table.Row{key, state, eventCount, updatedAt.Format("2006-01-02 15:04")})
	}
	t.Render()
}
