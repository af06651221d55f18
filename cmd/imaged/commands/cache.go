package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ashgrove/imaged/internal/cli/output"
	"github.com/ashgrove/imaged/pkg/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the cache chain",
	Long: `Report on the cache tiers (memory, local, swift) and the origin
object store configured in imaged's configuration.

Subcommands:
  stat  Report occupancy for each configured cache level
  list  Enumerate identities in the origin object store`,
}

var statOutput string

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Report occupancy for each configured cache level",
	Long: `Connect to every enabled cache level plus the origin object store and
print each one's current Stat: bytes/elements used versus its configured
maximum.

Examples:
  imaged cache stat
  imaged cache stat --output json`,
	RunE: runCacheStat,
}

var listPattern string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Enumerate identities in the origin object store",
	Long: `List identities in the origin object store matching pattern (a regular
expression; defaults to matching everything).

Examples:
  imaged cache list
  imaged cache list --pattern '^users/'`,
	RunE: runCacheList,
}

func init() {
	cacheCmd.AddCommand(statCmd)
	cacheCmd.AddCommand(listCmd)
	statCmd.Flags().StringVarP(&statOutput, "output", "o", "table", "Output format (table|json)")
	listCmd.Flags().StringVar(&listPattern, "pattern", ".*", "Regular expression to filter listed identities")
}

func runCacheStat(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	ctx := context.Background()
	chain, err := buildChain(ctx, cfg)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer func() { _ = chain.closer() }()

	table := output.NewTableData("LEVEL", "BYTES", "MAX BYTES", "ELEMENTS", "MAX ELEMENTS")
	for _, lvl := range chain.levels {
		stat, err := lvl.Stat(ctx)
		if err != nil {
			return fmt.Errorf("stat %s: %w", lvl.Name(), err)
		}
		table.AddRow(
			stat.Name,
			strconv.FormatInt(stat.Bytes, 10),
			strconv.FormatInt(stat.MaxBytes, 10),
			strconv.FormatInt(stat.Elements, 10),
			strconv.FormatInt(stat.MaxElements, 10),
		)
	}
	originStat, err := chain.origin.Stat(ctx)
	if err != nil {
		return fmt.Errorf("stat object-store: %w", err)
	}
	table.AddRow(
		originStat.Name,
		strconv.FormatInt(originStat.Bytes, 10),
		strconv.FormatInt(originStat.MaxBytes, 10),
		strconv.FormatInt(originStat.Elements, 10),
		strconv.FormatInt(originStat.MaxElements, 10),
	)

	format, err := output.ParseFormat(statOutput)
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(os.Stdout, table.Rows())
	}
	return output.PrintTable(os.Stdout, table)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	ctx := context.Background()
	chain, err := buildChain(ctx, cfg)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer func() { _ = chain.closer() }()

	ids, err := chain.origin.List(ctx, listPattern)
	if err != nil {
		return fmt.Errorf("list object-store: %w", err)
	}

	for _, id := range ids {
		fmt.Println(id.String())
	}
	return nil
}
