package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/hibiken/asynq"

	"github.com/parishbooks/parishbooks/jobs"
)

// Enqueues a period close (or reclose) for the worker to run.
//
//	go run ./scripts/closeperiod -year 2025 -month 8 -equity 3
func main() {
	year := flag.Int("year", 0, "calendar year to close")
	month := flag.Int("month", 0, "calendar month to close (1-12)")
	equity := flag.Int64("equity", 0, "equity account id receiving the net")
	note := flag.String("note", "", "period lock note")
	reclose := flag.Bool("reclose", false, "reverse stale closings and close again")
	flag.Parse()
	if *year == 0 || *month < 1 || *month > 12 || *equity == 0 {
		flag.Usage()
		os.Exit(2)
	}

	addr := getenv("REDIS_ADDR", "127.0.0.1:6379")
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: addr})
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer func() { _ = client.Close() }()

	info, err := client.EnqueuePeriodClose(context.Background(), jobs.PeriodClosePayload{
		Year:            *year,
		Month:           *month,
		EquityAccountID: *equity,
		Note:            *note,
		Reclose:         *reclose,
	})
	if err != nil {
		log.Fatalf("enqueue period close: %v", err)
	}
	log.Printf("enqueued %s id=%s queue=%s", info.Type, info.ID, info.Queue)
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
