package main

import (
	"fmt"
	"strings"

	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/resolver"

	"github.com/spf13/cobra"
)

func newResolveCmd(build buildFunc) *cobra.Command {
	var (
		category string
		trace    bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [text]",
		Short: "Resolve a single mention",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := common.ParseCategory(category)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			deps, err := build(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialise: %w", err)
			}
			defer deps.Close()

			var rt *resolver.ResolutionTrace
			if trace {
				rt = resolver.NewResolutionTrace()
				ctx = resolver.ContextWithTracer(ctx, rt)
			}

			entity, ok := deps.Resolver.Resolve(ctx, strings.Join(args, " "), cat)
			return writeJSON(cmd.OutOrStdout(), struct {
				Resolved bool                   `json:"resolved"`
				Entity   *common.ResolvedEntity `json:"entity,omitempty"`
				Trace    []resolver.TraceEvent  `json:"trace,omitempty"`
			}{ok, entity, rt.Events()})
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "MEDICATION, NUTRIENT, SYMPTOM or DRUG_CLASS")
	cmd.Flags().BoolVar(&trace, "trace", false, "print the strategy trace")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
