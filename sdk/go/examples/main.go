// Command examples calls a running Stellar node through the Go SDK.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/gil0mendes/Stellar/sdk/go/stellar"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "node base URL")
	flag.Parse()

	client, err := stellar.NewClient(*addr, nil)
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := client.Echo(ctx, "hello")
	if err != nil {
		log.Fatalf("echo: %v", err)
	}
	log.Printf("echo replied %q", msg)

	queued, err := client.Enqueue(ctx, "echo", map[string]any{"msg": "from a task"})
	if err != nil {
		log.Fatalf("enqueue: %v", err)
	}
	for queued.Status == "pending" || queued.Status == "running" {
		time.Sleep(200 * time.Millisecond)
		if queued, err = client.GetTask(ctx, queued.ID); err != nil {
			log.Fatalf("get task: %v", err)
		}
	}
	log.Printf("task %s finished as %s: %v", queued.ID, queued.Status, queued.Result)
}
