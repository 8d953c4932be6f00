package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/digest"
	"github.com/agenthands/slp/pkg/manifest"
)

func init() {
	getModelCmd.Flags().StringVar(
		&getModelCmdConfig.name,
		"name",
		"",
		"Resolve the model by the name it was uploaded under (requires a catalog)")

	RootCmd.AddCommand(putModelCmd)
	RootCmd.AddCommand(getModelCmd)
	RootCmd.AddCommand(putPromptsCmd)
	RootCmd.AddCommand(putCmd)
}

var getModelCmdConfig = struct {
	name string
}{}

var putModelCmd = &cobra.Command{
	Use:   "put-model <model.gguf> <model_name>",
	Short: "Upload a model and its manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		m, err := e.upload(cmd.Context(), core.Models, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded model %s sha256=%s size=%d\n", m.OriginalName, m.Digest, m.SizeBytes)
		fmt.Fprintf(cmd.OutOrStdout(), "  object:   %s\n", e.st.URL(core.Models, m.Digest))
		fmt.Fprintf(cmd.OutOrStdout(), "  manifest: %s\n", e.st.ManifestURL(core.Models, m.Digest))
		return nil
	},
}

var getModelCmd = &cobra.Command{
	Use:   "get-model [<model_hash>] <output_path>",
	Short: "Download a model and verify its digest",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		var key core.ObjectKey
		switch {
		case getModelCmdConfig.name != "" && len(args) == 1:
			if key, err = e.resolve(cmd.Context(), core.Models, getModelCmdConfig.name); err != nil {
				return err
			}
		case getModelCmdConfig.name == "" && len(args) == 2:
			if key, err = digest.ParseKey(args[0]); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: give either <model_hash> <output_path> or --name <name> <output_path>", core.ErrInvalidInput)
		}
		out := args[len(args)-1]

		fmt.Fprintf(cmd.OutOrStdout(), "downloading %s\n", e.st.URL(core.Models, key))
		data, err := e.st.Get(cmd.Context(), core.Models, key)
		if err != nil {
			return err
		}
		if err := writeFile(out, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "downloaded model %s (%d bytes) to %s\n", key, len(data), out)
		fmt.Fprintln(cmd.OutOrStdout(), "hash verified: OK")
		return nil
	},
}

var putPromptsCmd = &cobra.Command{
	Use:   "put-prompts <prompts.jsonl>",
	Short: "Upload a prompts file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		m, err := e.upload(cmd.Context(), core.Prompts, args[0], filepath.Base(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded prompts hash=%s (%d bytes)\n", m.Digest, m.SizeBytes)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Upload any file to the blobs category, named by its detected type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		mt, err := mimetype.DetectFile(args[0])
		if err != nil {
			return fmt.Errorf("error detecting type of %q: %w", args[0], err)
		}
		cat := core.Blobs
		if ext := mt.Extension(); ext != "" {
			cat = cat.WithExt(ext)
		}

		m, err := e.upload(cmd.Context(), cat, args[0], filepath.Base(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s) sha256=%s size=%d\n", m.OriginalName, mt.String(), m.Digest, m.SizeBytes)
		fmt.Fprintf(cmd.OutOrStdout(), "  object: %s\n", e.st.URL(cat, m.Digest))
		return nil
	},
}

// upload stores the file at path and its manifest, and records both in the
// catalog when one is configured.
func (e *env) upload(ctx context.Context, cat core.Category, path, name string) (manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("error reading %q: %w", path, err)
	}

	key, err := e.st.Put(ctx, cat, data)
	if err != nil {
		return manifest.Manifest{}, err
	}
	m := manifest.Build(key, uint64(len(data)), manifest.Now(), name)
	if err := e.st.PutManifest(ctx, cat, m); err != nil {
		return manifest.Manifest{}, err
	}

	if e.cat != nil {
		if err := e.cat.Record(ctx, cat, m); err != nil {
			return m, fmt.Errorf("error recording %s in catalog: %w", key, err)
		}
	}
	e.lg.Info("uploaded", zap.String("category", cat.Name), zap.String("key", key.String()), zap.Int("size", len(data)))
	return m, nil
}

func (e *env) resolve(ctx context.Context, cat core.Category, name string) (core.ObjectKey, error) {
	if e.cat == nil {
		return "", fmt.Errorf("%w: resolving by name needs a catalog (--catalog or catalog.dir)", core.ErrInvalidInput)
	}
	key, ok, err := e.cat.Lookup(ctx, cat, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: no %s named %q in catalog", core.ErrNotFound, cat.Name, name)
	}
	return key, nil
}

// writeFile replaces path with data without leaving a partial file behind.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("error creating %q: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing %q: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %q: %w", path, err)
	}
	return f, nil
}
