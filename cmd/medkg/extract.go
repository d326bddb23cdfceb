package main

import (
	"fmt"
	"strings"

	"github.com/medkg/backend/pkg/ai"
	"github.com/medkg/backend/pkg/common"

	"github.com/spf13/cobra"
)

func newExtractCmd(build buildFunc) *cobra.Command {
	var req ai.ExtractionRequest

	cmd := &cobra.Command{
		Use:   "extract [message]",
		Short: "Extract mentions from a message with the LLM and resolve them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Message = strings.Join(args, " ")

			ctx := cmd.Context()
			deps, err := build(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialise: %w", err)
			}
			defer deps.Close()

			if deps.Extractor == nil {
				return fmt.Errorf("extraction is not configured")
			}
			candidates, err := deps.Extractor.ExtractCandidates(ctx, req)
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}

			resolved, unresolved := deps.Resolver.ResolveBatch(ctx, candidates)
			return writeJSON(cmd.OutOrStdout(), struct {
				Candidates []common.Candidate      `json:"candidates"`
				Resolved   []common.ResolvedEntity `json:"resolved"`
				Unresolved []common.Candidate      `json:"unresolved"`
			}{candidates, resolved, unresolved})
		},
	}
	cmd.Flags().StringSliceVar(&req.AccumulatedMedications, "medications", nil, "medications mentioned earlier")
	cmd.Flags().StringSliceVar(&req.AccumulatedNutrients, "nutrients", nil, "nutrients mentioned earlier")
	cmd.Flags().StringSliceVar(&req.AccumulatedSymptoms, "symptoms", nil, "symptoms mentioned earlier")
	return cmd
}
