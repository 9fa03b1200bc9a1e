package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nbtaylor/concurrent/pkg/lock"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Reentrant lock scenarios",
}

var lockFairnessCmd = &cobra.Command{
	Use:   "fairness",
	Short: "A fair lock admits queued waiters in arrival order (scenario 4)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timeScenario("lock_fairness", func() error {
			l := lock.NewReentrantLock(true)
			if err := l.Lock(); err != nil {
				return err
			}

			order := make(chan string, 2)
			var wg sync.WaitGroup
			wg.Add(2)

			go func() {
				defer wg.Done()
				time.Sleep(5 * time.Millisecond)
				if err := l.LockCtx(context.Background()); err != nil {
					return
				}
				order <- "B"
				_ = l.Unlock()
			}()
			go func() {
				defer wg.Done()
				time.Sleep(10 * time.Millisecond)
				if err := l.LockCtx(context.Background()); err != nil {
					return
				}
				order <- "C"
				_ = l.Unlock()
			}()

			time.Sleep(20 * time.Millisecond)
			if err := l.Unlock(); err != nil {
				return err
			}
			wg.Wait()
			close(order)

			first, second := <-order, <-order
			if first != "B" || second != "C" {
				return fmt.Errorf("completion order = %s,%s, want B,C", first, second)
			}
			log.Info("lock fairness scenario passed")
			return nil
		})
	},
}

func init() {
	lockCmd.AddCommand(lockFairnessCmd)
}
