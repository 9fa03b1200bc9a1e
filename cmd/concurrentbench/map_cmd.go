package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nbtaylor/concurrent/pkg/cmap"
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Segmented map scenarios",
}

var mapRoundtripCmd = &cobra.Command{
	Use:   "roundtrip",
	Short: "Insert a-z, verify size/get/remove/iteration (scenario 1)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timeScenario("map_roundtrip", func() error {
			m := cmap.New[string, int](
				cmap.WithConcurrencyLevel[string, int](4),
				cmap.WithInitialCapacity[string, int](16),
				cmap.WithLoadFactor[string, int](0.75),
				cmap.WithHasher[string, int](cmap.StringHasher()),
			)
			for i := 0; i < 26; i++ {
				key := string(rune('a' + i))
				if _, _, err := m.Put(key, i+1); err != nil {
					return err
				}
			}
			if got := m.Size(); got != 26 {
				return fmt.Errorf("size = %d, want 26", got)
			}
			if v, ok := m.Get("m"); !ok || v != 13 {
				return fmt.Errorf("get(m) = %d,%v want 13,true", v, ok)
			}
			old, had := m.Remove("a")
			if !had || old != 1 {
				return fmt.Errorf("remove(a) = %d,%v want 1,true", old, had)
			}
			if m.ContainsKey("a") {
				return fmt.Errorf("contains_key(a) = true, want false")
			}
			keys := m.Keys()
			if len(keys) != 25 {
				return fmt.Errorf("iteration yielded %d keys, want 25", len(keys))
			}
			log.WithField("size", m.Size()).Info("map roundtrip scenario passed")
			return nil
		})
	},
}

var mapResizeCmd = &cobra.Command{
	Use:   "resize",
	Short: "Insert 100 int keys into a tiny map and verify every entry survives the resizes (scenario 2)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timeScenario("map_resize", func() error {
			m := cmap.New[int, string](
				cmap.WithConcurrencyLevel[int, string](1),
				cmap.WithInitialCapacity[int, string](2),
				cmap.WithLoadFactor[int, string](0.75),
				cmap.WithHasher[int, string](cmap.IntHasher()),
			)
			for i := 0; i < 100; i++ {
				if _, _, err := m.Put(i, strconv.Itoa(i)); err != nil {
					return err
				}
			}
			for i := 0; i < 100; i++ {
				v, ok := m.Get(i)
				if !ok || v != strconv.Itoa(i) {
					return fmt.Errorf("get(%d) = %q,%v, want %q,true", i, v, ok, strconv.Itoa(i))
				}
			}
			log.WithField("size", m.Size()).Info("map resize scenario passed")
			return nil
		})
	},
}

func init() {
	mapCmd.AddCommand(mapRoundtripCmd)
	mapCmd.AddCommand(mapResizeCmd)
}
