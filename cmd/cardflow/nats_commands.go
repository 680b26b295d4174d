package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	natspkg "github.com/brojonat/cardflow/service/nats"
	"github.com/brojonat/cardflow/service/payment"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to pipeline events, optionally for one record.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to pipeline events",
		ArgsUsage: "[record_id]",
		Description: `Subscribe to real-time pipeline events published to NATS JetStream.

This command connects to NATS and streams step and settlement events. With
a record id argument, only events for that record are shown. Step events
are published to payments.pipeline.{record_id} and settlement events to
payments.settled.{record_id}.

Example:
  cardflow nats subscribe 6b2e3f9a-0d3c-4a7e-9a1b-2f4c8d9e0f1a --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "cardflow-cli",
			},
		},
		Action: func(c *cli.Context) error {
			recordID := c.Args().First()
			natsURL := c.String("nats-url")
			durable := c.Bool("durable")
			consumerName := c.String("consumer-name")
			jsonOutput := c.Bool("json")

			return streamPipelineEvents(recordID, natsURL, durable, consumerName, jsonOutput)
		},
	}
}

// streamPipelineEvents connects to NATS and streams pipeline events.
func streamPipelineEvents(recordID, natsURL string, durable bool, consumerName string, jsonOutput bool) error {
	// Connect to NATS
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := natspkg.StreamSubjects
	if recordID != "" {
		subject = fmt.Sprintf("payments.*.%s", recordID)
	}

	if !jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for pipeline events... (Ctrl-C to exit)\n\n")
	}

	// Create consumer config
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	// Create or update consumer
	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Receive messages
	msgChan := make(chan jetstream.Msg, 10)

	// Start consuming in background
	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			count++

			if jsonOutput {
				// Output raw JSON
				fmt.Println(string(msg.Data()))
				msg.Ack()
				continue
			}

			// Human-friendly output keyed on the subject
			if strings.HasPrefix(msg.Subject(), "payments.settled.") {
				var event payment.SettlementEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
					msg.Ack()
					continue
				}
				printSettlementEvent(event)
			} else {
				var event payment.StepEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
					msg.Ack()
					continue
				}
				printStepEvent(event)
			}

			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\n\n✅ Received %d event(s)\n", count)
				fmt.Println("Shutting down...")
			}
			return nil
		}
	}
}

func printStepEvent(event payment.StepEvent) {
	fmt.Printf("[%s] %s/%s", event.RecordID[:8], event.Phase, event.Step)
	if event.Detail != "" {
		fmt.Printf(" (%s)", event.Detail)
	}
	fmt.Printf(" +%dms\n", event.Duration.Milliseconds())
}

func printSettlementEvent(event payment.SettlementEvent) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Settlement: %s\n", event.Status)
	fmt.Printf("Record:     %s\n", event.RecordID)
	fmt.Printf("Item:       %s\n", event.ItemLabel)
	fmt.Printf("Amount:     %s\n", payment.FormatUSD(event.FinalAmount))
	if event.TxHash != "" {
		fmt.Printf("Tx Hash:    %s\n", event.TxHash)
	}
	if event.BlockNumber != 0 {
		fmt.Printf("Block:      %d\n", event.BlockNumber)
	}
	fmt.Printf("Synthetic:  %t\n", event.Synthetic)
	if !event.SettledAt.IsZero() {
		fmt.Printf("Settled:    %s\n", event.SettledAt.Format(time.RFC3339))
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the PAYMENTS JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  cardflow nats inspect-stream`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			// Get stream info
			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("Stream: %s\n", info.Config.Name)
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Description:  %s\n", info.Config.Description)
				fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
				fmt.Printf("Messages:     %d\n", info.State.Msgs)
				fmt.Printf("Bytes:        %d\n", info.State.Bytes)
				fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
				fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
				fmt.Printf("Consumers:    %d\n", info.State.Consumers)
				fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
				fmt.Printf("Storage:      %s\n", info.Config.Storage)
				fmt.Printf("\n")
			}

			return nil
		},
	}
}
