package kv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchkit/couchkit/client"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			res, err := collection.Get(key)
			if err != nil {
				return err
			}
			var content interface{}
			if err := res.ContentAs(&content); err != nil {
				return err
			}
			fmt.Printf("key=%s, cas=%d, content=%s\n", key, res.Cas(), renderJSON(content))
			return nil
		},
	}
	upsertCmd = &cobra.Command{
		Use:   "upsert [key] [value]",
		Short: "Stores a document regardless of prior existence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := collection.Upsert(args[0], parseValue(args[1]), mutationOptions(cmd)...)
			if err != nil {
				return err
			}
			fmt.Printf("upserted, cas=%d\n", res.Cas())
			return nil
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [key] [value]",
		Short: "Stores a document that must not exist yet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := collection.Insert(args[0], parseValue(args[1]), mutationOptions(cmd)...)
			if err != nil {
				return err
			}
			fmt.Printf("inserted, cas=%d\n", res.Cas())
			return nil
		},
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [key] [value]",
		Short: "Overwrites a document that must exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := mutationOptions(cmd)
			if cas, err := casFlag(cmd); err != nil {
				return err
			} else if cas != 0 {
				opts = append(opts, client.WithCas(cas))
			}
			res, err := collection.Replace(args[0], parseValue(args[1]), opts...)
			if err != nil {
				return err
			}
			fmt.Printf("replaced, cas=%d\n", res.Cas())
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Deletes a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []interface{}
			if cas, err := casFlag(cmd); err != nil {
				return err
			} else if cas != 0 {
				opts = append(opts, client.WithCas(cas))
			}
			res, err := collection.Remove(args[0], opts...)
			if err != nil {
				return err
			}
			fmt.Printf("removed, cas=%d\n", res.Cas())
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key]",
		Short: "Checks if a document exists without reading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			res, err := collection.Exists(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, exists=%t\n", key, res.Exists())
			return nil
		},
	}
	touchCmd = &cobra.Command{
		Use:   "touch [key] [expiry]",
		Short: "Resets a document's expiry (e.g. 30s, 5m, 0 to clear)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("expiry must be a duration: %w", err)
			}
			res, err := collection.Touch(args[0], expiry)
			if err != nil {
				return err
			}
			fmt.Printf("touched, cas=%d\n", res.Cas())
			return nil
		},
	}
	lockCmd = &cobra.Command{
		Use:   "lock [key] [lockTime]",
		Short: "Reads a document and write-locks it for the given duration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lockTime, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("lockTime must be a duration: %w", err)
			}
			res, err := collection.GetAndLock(args[0], lockTime)
			if err != nil {
				return err
			}
			var content interface{}
			if err := res.ContentAs(&content); err != nil {
				return err
			}
			fmt.Printf("locked, cas=%d, content=%s\n", res.Cas(), renderJSON(content))
			return nil
		},
	}
	unlockCmd = &cobra.Command{
		Use:   "unlock [key] [cas]",
		Short: "Releases a lock taken by the lock command",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cas, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("cas must be a number: %w", err)
			}
			if err := collection.Unlock(args[0], client.Cas(cas)); err != nil {
				return err
			}
			fmt.Println("unlocked")
			return nil
		},
	}
	counterCmd = &cobra.Command{
		Use:   "counter [key] [delta]",
		Short: "Adjusts a counter document (negative delta decrements)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("delta must be a number: %w", err)
			}
			var opts []interface{}
			if cmd.Flags().Changed("initial") {
				initial, _ := cmd.Flags().GetUint64("initial")
				opts = append(opts, client.WithInitial(initial))
			}

			var res *client.CounterResult
			if delta < 0 {
				opts = append(opts, client.WithDelta(uint64(-delta)))
				res, err = collection.Binary().Decrement(args[0], opts...)
			} else {
				opts = append(opts, client.WithDelta(uint64(delta)))
				res, err = collection.Binary().Increment(args[0], opts...)
			}
			if err != nil {
				return err
			}
			fmt.Printf("counter=%d, cas=%d\n", res.Content(), res.Cas())
			return nil
		},
	}
	lookupCmd = &cobra.Command{
		Use:   "lookup [key] [path...]",
		Short: "Reads document fragments by path",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			specs := make([]subdoc.Spec, 0, len(args)-1)
			for _, path := range args[1:] {
				specs = append(specs, subdoc.Get(path))
			}
			res, err := collection.LookupIn(key, specs)
			if err != nil {
				return err
			}
			for i, path := range args[1:] {
				if !res.Exists(i) {
					fmt.Printf("%s: <missing>\n", path)
					continue
				}
				var content interface{}
				if err := res.ContentAs(i, &content); err != nil {
					fmt.Printf("%s: error: %v\n", path, err)
					continue
				}
				fmt.Printf("%s: %s\n", path, renderJSON(content))
			}
			return nil
		},
	}
	mutateCmd = &cobra.Command{
		Use:   "mutate [key] [path=value...]",
		Short: "Upserts document fragments by path, atomically as a whole",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			specs := make([]subdoc.Spec, 0, len(args)-1)
			for _, arg := range args[1:] {
				path, raw, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("expected path=value, got %q", arg)
				}
				specs = append(specs, subdoc.Upsert(path, parseValue(raw), subdoc.CreateParents()))
			}
			res, err := collection.MutateIn(key, specs,
				client.WithStoreSemantics(options.StoreSemanticsUpsert))
			if err != nil {
				return err
			}
			fmt.Printf("mutated, cas=%d\n", res.Cas())
			return nil
		},
	}
)

func init() {
	counterCmd.Flags().Uint64("initial", 0, "Initial value if the counter does not exist yet")
	replaceCmd.Flags().String("cas", "", "CAS the document must still have")
	removeCmd.Flags().String("cas", "", "CAS the document must still have")
	for _, cmd := range []*cobra.Command{upsertCmd, insertCmd, replaceCmd} {
		cmd.Flags().Duration("expiry", 0, "Document expiry (e.g. 30s, 24h, 0 for none)")
		cmd.Flags().String("durability", "", "Durability level (majority, majority-persist-active, persist-majority)")
	}
}

// parseValue reads a CLI value argument as JSON where possible and falls
// back to a plain string, so `upsert k '{"a":1}'` and `upsert k hello`
// both do the obvious thing.
func parseValue(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func renderJSON(v interface{}) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}

func casFlag(cmd *cobra.Command) (client.Cas, error) {
	raw, _ := cmd.Flags().GetString("cas")
	if raw == "" {
		return 0, nil
	}
	cas, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cas must be a number: %w", err)
	}
	return client.Cas(cas), nil
}

// mutationOptions reads the shared mutation flags of the store commands.
func mutationOptions(cmd *cobra.Command) []interface{} {
	opts := make([]interface{}, 0, 2)
	if expiry, _ := cmd.Flags().GetDuration("expiry"); expiry > 0 {
		opts = append(opts, client.WithExpiry(expiry))
	}
	durability, _ := cmd.Flags().GetString("durability")
	switch durability {
	case "majority":
		opts = append(opts, client.WithDurability(options.DurabilityLevelMajority))
	case "majority-persist-active":
		opts = append(opts, client.WithDurability(options.DurabilityLevelMajorityAndPersistToActive))
	case "persist-majority":
		opts = append(opts, client.WithDurability(options.DurabilityLevelPersistToMajority))
	}
	return opts
}
