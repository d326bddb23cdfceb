package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/resolver"

	"github.com/spf13/cobra"
)

// readCandidates decodes a JSON array of {"text", "category"} objects.
func readCandidates(r io.Reader) ([]common.Candidate, error) {
	var raw []struct {
		Text     string `json:"text"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}

	out := make([]common.Candidate, 0, len(raw))
	for i, c := range raw {
		cat, err := common.ParseCategory(c.Category)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		out = append(out, common.Candidate{Text: c.Text, Category: cat})
	}
	return out, nil
}

func newBatchCmd(build buildFunc) *cobra.Command {
	var (
		workers int
		memoize bool
	)

	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Resolve a JSON array of candidates read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			candidates, err := readCandidates(in)
			if err != nil {
				return err
			}

			deps, err := build(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialise: %w", err)
			}
			defer deps.Close()

			var opts []resolver.BatchOption
			if workers > 0 {
				opts = append(opts, resolver.WithWorkers(workers))
			}
			if cmd.Flags().Changed("memoize") {
				opts = append(opts, resolver.WithMemoization(memoize))
			}

			resolved, unresolved := deps.Resolver.ResolveBatch(cmd.Context(), candidates, opts...)
			return writeJSON(cmd.OutOrStdout(), struct {
				Resolved   []common.ResolvedEntity `json:"resolved"`
				Unresolved []common.Candidate      `json:"unresolved"`
			}{resolved, unresolved})
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "resolve up to n candidates concurrently")
	cmd.Flags().BoolVar(&memoize, "memoize", false, "resolve repeated (text, category) pairs once")
	return cmd
}
