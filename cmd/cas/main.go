// Command cas inspects and modifies content-addressed asset stores.
//
// A store path holds either loose files (the default, writable) or a
// set of pre-built archives (with -a, read-only).
package main

import (
	"iter"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/cas"
)

var archives bool

var rootCmd = &cobra.Command{
	Use:           "cas",
	Short:         "Inspect and modify content-addressed asset stores",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&archives, "archives", "a", false,
		"path holds archives instead of loose files")
	rootCmd.AddCommand(catCmd, lsCmd)
}

// reader is the read side shared by both store kinds.
type reader interface {
	Get(h cas.Hash) (*cas.Asset, error)
	List() iter.Seq[cas.Hash]
}

// openReader opens path as the store kind selected by the -a flag. The
// returned closer releases archive mappings; loose stores hold nothing
// open between operations.
func openReader(path string) (reader, func() error, error) {
	if archives {
		set, err := cas.OpenArchiveSet(path)
		if err != nil {
			return nil, nil, err
		}
		return set, set.Close, nil
	}
	store, err := cas.OpenLooseFiles(path)
	if err != nil {
		return nil, nil, err
	}
	return store, func() error { return nil }, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
