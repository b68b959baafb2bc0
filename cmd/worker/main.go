package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flowkan/process-ai/internal/config"
	"github.com/flowkan/process-ai/internal/db"
	"github.com/flowkan/process-ai/internal/process"
	"github.com/flowkan/process-ai/internal/requirements"
	"github.com/flowkan/process-ai/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := process.NewRepo(gdb)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("declare topology: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("analysis worker started queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var job process.AnalysisJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.SessionID == "" {
					log.Printf("worker=%d bad message err=%v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, repo, job); err != nil {
					log.Printf("worker=%d job session=%s failed cost=%s err=%v",
						workerID, job.SessionID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed session=%s err=%v", workerID, job.SessionID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob re-reads the conversation rather than trusting the message
// body; the queue only carries the pointer and the context snapshot.
func handleJob(ctx context.Context, repo *process.Repo, job process.AnalysisJob) error {
	msgs, err := repo.ListRecentMessagesAsc(ctx, job.SessionID, 200)
	if err != nil {
		return err
	}

	reqs := requirements.ExtractFromConversation(msgs, job.Context)
	if err := repo.SetRequirements(ctx, job.SessionID, reqs); err != nil {
		return err
	}

	log.Printf("analysis done session=%s requirements=%d messages=%d",
		job.SessionID, len(reqs), len(msgs))
	return nil
}
