package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datagrade/datagrade/pkg/cache"
	"github.com/datagrade/datagrade/pkg/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the report cache",
}

var cacheCheckCmd = &cobra.Command{
	Use:   "check [dataset]",
	Short: "Check whether a dataset has a cached report",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheCheck,
}

var cacheDropCmd = &cobra.Command{
	Use:   "drop [dataset]",
	Short: "Drop the cached report for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheDrop,
}

func init() {
	cacheCmd.AddCommand(cacheCheckCmd)
	cacheCmd.AddCommand(cacheDropCmd)
}

func openCache(cfg *config.Config) (*cache.ReportCache, error) {
	ccfg := cache.DefaultConfig(cfg.Cache.Address)
	ccfg.Password = cfg.Cache.Password
	ccfg.Database = cfg.Cache.Database
	return cache.New(ccfg)
}

func runCacheCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	key, err := cache.RequestKey(datasetIdentity(args[0]), cfg)
	if err != nil {
		return err
	}
	report, err := c.Get(context.Background(), key)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Println("miss")
		return nil
	}
	fmt.Printf("hit: %s scored %.3f (%s) at %s\n",
		report.Dataset, report.Composite, report.Grade, report.StartedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runCacheDrop(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	key, err := cache.RequestKey(datasetIdentity(args[0]), cfg)
	if err != nil {
		return err
	}
	if err := c.Invalidate(context.Background(), key); err != nil {
		return err
	}
	fmt.Println("dropped")
	return nil
}
