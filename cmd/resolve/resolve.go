// Package resolve contains the commands that run one resolution request
// against a fixture file and print the result as JSON.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/gridbase/gridbase/cmd/util"
	"github.com/gridbase/gridbase/pkg/logger"
	"github.com/gridbase/gridbase/pkg/resolver"
	"github.com/gridbase/gridbase/pkg/schema"
	"github.com/gridbase/gridbase/pkg/storage"
	"github.com/gridbase/gridbase/pkg/storage/memory"
)

// fixture is the on-disk shape of a dataset: the collection schemas plus the
// records of each collection, keyed by collection code. YAML and JSON are both
// accepted.
type fixture struct {
	Collections []*schema.Collection        `json:"collections"`
	Records     map[string][]storage.Record `json:"records"`
}

func newResolverFromFixture(ctx context.Context) (*resolver.Resolver, error) {
	path := viper.GetString("fixture")
	if path == "" {
		return nil, fmt.Errorf("a fixture file is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %q: %w", path, err)
	}

	provider, err := schema.NewStaticProvider(fx.Collections...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	datastore := memory.New(memory.WithSchemaProvider(provider))
	for collection, records := range fx.Records {
		for _, record := range records {
			if _, err := datastore.PutRecord(ctx, collection, record); err != nil {
				return nil, fmt.Errorf("load records for %q: %w", collection, err)
			}
		}
	}

	log, err := logger.NewLogger(viper.GetString("log-format"), viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}

	return resolver.New(&resolver.Dependencies{
		Schema:    provider,
		Datastore: datastore,
		Logger:    log,
	}, &resolver.Config{
		MaxHierarchyDepth: viper.GetInt("max-depth"),
	}), nil
}

func printResult(cmd *cobra.Command, result any) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func bindCommonFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.String("fixture", "", "path to a YAML or JSON fixture file with collections and records")
	util.MustBindPFlag("fixture", flags.Lookup("fixture"))
	util.MustBindEnv("fixture", "GRIDBASE_FIXTURE")

	flags.String("log-format", "text", "the log format to output logs in")
	util.MustBindPFlag("log-format", flags.Lookup("log-format"))

	flags.String("log-level", "none", "the log level to use")
	util.MustBindPFlag("log-level", flags.Lookup("log-level"))
}

// NewLookupCommand returns the command that resolves a cross-record lookup.
func NewLookupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve the value of a property on the record(s) referenced by another record",
		RunE:  runLookup,
		Args:  cobra.NoArgs,
	}

	bindCommonFlags(cmd)
	flags := cmd.Flags()

	flags.String("collection", "", "the collection holding the referenced records")
	util.MustBindPFlag("collection", flags.Lookup("collection"))

	flags.String("reference-property", "", "the reference property on the referencing record")
	util.MustBindPFlag("reference-property", flags.Lookup("reference-property"))

	flags.String("source-property", "", "the property to fetch from the referenced record")
	util.MustBindPFlag("source-property", flags.Lookup("source-property"))

	flags.StringSlice("values", nil, "the reference value(s), one id or several for a multi-reference")
	util.MustBindPFlag("values", flags.Lookup("values"))

	return cmd
}

func runLookup(cmd *cobra.Command, _ []string) error {
	r, err := newResolverFromFixture(cmd.Context())
	if err != nil {
		return err
	}
	defer r.Close()

	result := r.ResolveLookup(cmd.Context(), &resolver.LookupRequest{
		SourceCollection:  viper.GetString("collection"),
		ReferenceProperty: viper.GetString("reference-property"),
		SourceProperty:    viper.GetString("source-property"),
		ReferenceValues:   viper.GetStringSlice("values"),
	})
	return printResult(cmd, result)
}

// NewRollupCommand returns the command that aggregates a property across the
// records referencing a record.
func NewRollupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Aggregate a property across all records that reference a record",
		RunE:  runRollup,
		Args:  cobra.NoArgs,
	}

	bindCommonFlags(cmd)
	flags := cmd.Flags()

	flags.String("collection", "", "the collection holding the related records")
	util.MustBindPFlag("collection", flags.Lookup("collection"))

	flags.String("reference-property", "", "the property on the related records that points back at the record")
	util.MustBindPFlag("reference-property", flags.Lookup("reference-property"))

	flags.String("source-property", "", "the property to aggregate")
	util.MustBindPFlag("source-property", flags.Lookup("source-property"))

	flags.String("aggregation", "SUM", "the aggregation function to apply")
	util.MustBindPFlag("aggregation", flags.Lookup("aggregation"))

	flags.String("record", "", "the id of the record being rolled up to")
	util.MustBindPFlag("record", flags.Lookup("record"))

	flags.String("filter", "", "an optional field = 'value' filter on the related records")
	util.MustBindPFlag("filter", flags.Lookup("filter"))

	return cmd
}

func runRollup(cmd *cobra.Command, _ []string) error {
	r, err := newResolverFromFixture(cmd.Context())
	if err != nil {
		return err
	}
	defer r.Close()

	result := r.ResolveRollup(cmd.Context(), &resolver.RollupRequest{
		SourceCollection:  viper.GetString("collection"),
		ReferenceProperty: viper.GetString("reference-property"),
		SourceProperty:    viper.GetString("source-property"),
		Aggregation:       resolver.Aggregation(viper.GetString("aggregation")),
		RecordID:          viper.GetString("record"),
		Filter:            viper.GetString("filter"),
	})
	return printResult(cmd, result)
}

// NewHierarchyCommand returns the command that traverses a parent/child
// hierarchy from a record.
func NewHierarchyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hierarchy",
		Short: "Traverse a self-referential parent/child hierarchy from a record",
		RunE:  runHierarchy,
		Args:  cobra.NoArgs,
	}

	bindCommonFlags(cmd)
	flags := cmd.Flags()

	flags.String("collection", "", "the collection holding the hierarchy")
	util.MustBindPFlag("collection", flags.Lookup("collection"))

	flags.String("parent-property", "", "the self-referential parent-pointer property")
	util.MustBindPFlag("parent-property", flags.Lookup("parent-property"))

	flags.String("record", "", "the id of the starting record")
	util.MustBindPFlag("record", flags.Lookup("record"))

	flags.String("direction", "ancestors", "the traversal direction: ancestors, descendants, siblings, or path")
	util.MustBindPFlag("direction", flags.Lookup("direction"))

	flags.Int("max-depth", 0, "the maximum traversal depth, 0 for the default")
	util.MustBindPFlag("max-depth", flags.Lookup("max-depth"))

	flags.StringSlice("properties", nil, "properties to include on returned nodes")
	util.MustBindPFlag("properties", flags.Lookup("properties"))

	return cmd
}

func runHierarchy(cmd *cobra.Command, _ []string) error {
	r, err := newResolverFromFixture(cmd.Context())
	if err != nil {
		return err
	}
	defer r.Close()

	result := r.ResolveHierarchy(cmd.Context(), &resolver.HierarchyRequest{
		Collection:     viper.GetString("collection"),
		ParentProperty: viper.GetString("parent-property"),
		RecordID:       viper.GetString("record"),
		Direction:      resolver.Direction(viper.GetString("direction")),
		MaxDepth:       viper.GetInt("max-depth"),
		Properties:     viper.GetStringSlice("properties"),
	})
	return printResult(cmd, result)
}
