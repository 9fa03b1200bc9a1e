package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nbtaylor/concurrent/pkg/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Blocking queue scenarios",
}

var queueBackpressureCmd = &cobra.Command{
	Use:   "backpressure",
	Short: "Put past capacity blocks until a concurrent take frees a slot (scenario 3)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timeScenario("queue_backpressure", func() error {
			q := queue.NewBlockingQueue[int](2)
			ctx := context.Background()

			if err := q.Put(ctx, 1); err != nil {
				return err
			}
			if err := q.Put(ctx, 2); err != nil {
				return err
			}

			done := make(chan error, 1)
			start := time.Now()
			go func() {
				done <- q.Put(ctx, 3)
			}()

			time.Sleep(10 * time.Millisecond)
			if _, err := q.Take(ctx); err != nil {
				return err
			}

			if err := <-done; err != nil {
				return err
			}
			queueBackpressure.Set(time.Since(start).Seconds())

			got := q.ToArray()
			if len(got) != 2 || got[0] != 2 || got[1] != 3 {
				return fmt.Errorf("queue contents = %v, want [2 3]", got)
			}

			if _, err := q.Take(ctx); err != nil {
				return err
			}
			got = q.ToArray()
			if len(got) != 1 || got[0] != 3 {
				return fmt.Errorf("queue contents after second take = %v, want [3]", got)
			}
			log.Info("queue backpressure scenario passed")
			return nil
		})
	},
}

func init() {
	queueCmd.AddCommand(queueBackpressureCmd)
}
