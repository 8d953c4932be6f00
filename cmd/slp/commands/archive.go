package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/slp/pkg/bundle"
	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/digest"
	"github.com/agenthands/slp/pkg/manifest"
)

func init() {
	for _, c := range []*cobra.Command{exportCmd, importCmd} {
		c.Flags().StringVar(
			&archiveCmdConfig.ext,
			"ext",
			"",
			"Extension the objects are stored under (default: the category's)")
	}

	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(importCmd)
	RootCmd.AddCommand(lsCmd)
}

var archiveCmdConfig = struct {
	ext string
}{}

func archiveCategory(name string) (core.Category, error) {
	cat, err := core.ParseCategory(name)
	if err != nil {
		return cat, err
	}
	if archiveCmdConfig.ext != "" {
		cat = cat.WithExt(archiveCmdConfig.ext)
	}
	return cat, nil
}

var exportCmd = &cobra.Command{
	Use:   "export <out.car> <category> <key>...",
	Short: "Download verified objects into a CAR archive",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := archiveCategory(args[1])
		if err != nil {
			return err
		}
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		var objs []bundle.Object
		for _, s := range args[2:] {
			key, err := digest.ParseKey(s)
			if err != nil {
				return err
			}
			data, err := e.st.Get(cmd.Context(), cat, key)
			if err != nil {
				return fmt.Errorf("error fetching %s: %w", key, err)
			}
			objs = append(objs, bundle.Object{Key: key, Data: data})
		}

		if err := bundle.Write(cmd.Context(), args[0], objs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d object(s) from %s to %s\n", len(objs), cat.Name, args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <in.car> <category>",
	Short: "Upload every object of a CAR archive after verifying it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := archiveCategory(args[1])
		if err != nil {
			return err
		}
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		n := 0
		err = bundle.Read(cmd.Context(), args[0], func(o bundle.Object) error {
			key, err := e.st.Put(cmd.Context(), cat, o.Data)
			if err != nil {
				return err
			}
			if key != o.Key {
				return fmt.Errorf("%w: stored %s as %s", core.ErrIntegrityMismatch, o.Key, key)
			}
			n++
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", key)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d object(s) into %s\n", n, cat.Name)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <category>",
	Short: "List the uploads recorded in the local catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := core.ParseCategory(args[0])
		if err != nil {
			return err
		}
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if e.cat == nil {
			return fmt.Errorf("%w: ls needs a catalog (--catalog or catalog.dir)", core.ErrInvalidInput)
		}
		return e.cat.Iterate(cmd.Context(), cat, func(m manifest.Manifest) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %12d  %s  %s\n", m.Digest, m.SizeBytes, m.CreatedAt, m.OriginalName)
			return err
		})
	},
}
