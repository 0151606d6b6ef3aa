package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/cas"
)

var catCmd = &cobra.Command{
	Use:   "cat <path> [hash]",
	Short: "Read or write a single asset",
	Long: `With a hash, write that asset's bytes to stdout.
Without one, insert stdin as a new asset and print its hash.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCat,
}

func runCat(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		return catAsset(cmd, args[0], args[1])
	}
	if archives {
		return errors.New("archive sets are read-only")
	}
	return insertStdin(cmd, args[0])
}

func catAsset(cmd *cobra.Command, path, hashArg string) error {
	h, err := cas.ParseHash(hashArg)
	if err != nil {
		return err
	}
	store, closer, err := openReader(path)
	if err != nil {
		return err
	}
	defer closer()

	asset, err := store.Get(h)
	if err != nil {
		return err
	}
	defer asset.Close()

	_, err = cmd.OutOrStdout().Write(asset.Bytes())
	return err
}

func insertStdin(cmd *cobra.Command, path string) error {
	store, err := cas.OpenLooseFiles(path)
	if err != nil {
		return err
	}
	w, err := store.NewWriter()
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, os.Stdin); err != nil {
		w.Abort()
		return err
	}
	h, err := w.Store()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), h)
	return err
}
