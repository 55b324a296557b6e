package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/RaufCode/venella-pharmacy/internal/config"
	"github.com/RaufCode/venella-pharmacy/internal/db"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
	"github.com/RaufCode/venella-pharmacy/internal/schema"
)

func main() {
	cfg := config.Load()

	gdb, err := db.Open(db.FromEnv())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if cfg.AutoMigrate {
		if err := schema.Migrate(gdb); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}
	p := NewProcessor(notifications.NewStore(gdb))

	// If RUN_LOCAL=true, process a single simulated SQS event and exit.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Fatal("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
