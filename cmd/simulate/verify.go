package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type check struct {
	name  string
	query string
}

// checks each count rows that break a scheduling guarantee; all must be zero.
var checks = []check{
	{
		name: "overlapping active appointments",
		query: `
			SELECT count(*) FROM appointments a
			JOIN appointments b
			  ON a.doctor_id = b.doctor_id
			 AND a.appointment_date = b.appointment_date
			 AND a.id < b.id
			 AND a.slot_start_min < b.slot_end_min
			 AND b.slot_start_min < a.slot_end_min
			WHERE a.type <> 'emergency' AND b.type <> 'emergency'
			  AND a.status NOT IN ('cancelled', 'no-show')
			  AND b.status NOT IN ('cancelled', 'no-show')`,
	},
	{
		name: "duplicate queue tokens",
		query: `
			SELECT count(*) FROM (
				SELECT 1 FROM queue_entries
				GROUP BY doctor_id, queue_date, token_number
				HAVING count(*) > 1
			) d`,
	},
	{
		name: "doctors with several active consultations",
		query: `
			SELECT count(*) FROM (
				SELECT 1 FROM queue_entries
				WHERE status = 'in-consultation'
				GROUP BY doctor_id, queue_date
				HAVING count(*) > 1
			) d`,
	},
}

func verify(ctx context.Context, pool *pgxpool.Pool) error {
	var failed []string
	for _, c := range checks {
		var n int
		if err := pool.QueryRow(ctx, c.query).Scan(&n); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		fmt.Printf("  %-45s %d\n", c.name, n)
		if n > 0 {
			failed = append(failed, c.name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("consistency checks failed: %v", failed)
	}
	return nil
}
