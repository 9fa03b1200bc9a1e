package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nbtaylor/concurrent/pkg/lock"
)

var conditionCmd = &cobra.Command{
	Use:   "condition",
	Short: "Condition queue scenarios",
}

var conditionSignalCmd = &cobra.Command{
	Use:   "signal",
	Short: "A awaits, B signals after A is waiting, A resumes holding the lock (scenario 5)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timeScenario("condition_signal", func() error {
			l := lock.NewReentrantLock(false)
			cond := l.NewCondition()

			var wg sync.WaitGroup
			wg.Add(1)
			resumed := false

			waiting := make(chan struct{})
			go func() {
				defer wg.Done()
				if err := l.Lock(); err != nil {
					return
				}
				close(waiting)
				if err := cond.Await(context.Background()); err != nil {
					_ = l.Unlock()
					return
				}
				resumed = l.IsHeldByCurrentThread()
				_ = l.Unlock()
			}()

			<-waiting
			time.Sleep(5 * time.Millisecond)

			if err := l.Lock(); err != nil {
				return err
			}
			if err := cond.Signal(); err != nil {
				return err
			}
			if err := l.Unlock(); err != nil {
				return err
			}

			wg.Wait()
			if !resumed {
				return fmt.Errorf("awaiting goroutine did not resume holding the lock")
			}
			log.Info("condition signal scenario passed")
			return nil
		})
	},
}

func init() {
	conditionCmd.AddCommand(conditionSignalCmd)
}
