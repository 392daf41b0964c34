package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/pcb-agent/pkg/store"
)

func chatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <text>",
		Short: "Send one message to the supervisor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := rt.Supervisor().Chat(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

func analyzeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <image>",
		Short: "Ask the supervisor to analyze a board image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			path, err := imagePath(args[0])
			if err != nil {
				return err
			}
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := rt.Supervisor().AnalyzeImage(cmd.Context(), path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply)
			return printArtifacts(out, a.cfg.Vision.OutputDir)
		},
	}
}

func detectCommand(a *app) *cobra.Command {
	var boardCode, note string
	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Run detection on an image and store the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			path, err := imagePath(args[0])
			if err != nil {
				return err
			}
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			res, err := rt.Pipeline().Analyze(cmd.Context(), path)
			if err != nil {
				return err
			}
			board, crops := store.UploadsFromResult(res, filepath.Base(path), store.OptionalString(boardCode), store.OptionalString(note))
			bundle, err := rt.Records().Persist(cmd.Context(), board, crops)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), bundle)
		},
	}
	cmd.Flags().StringVar(&boardCode, "board-code", "", "board identifier stored with the image")
	cmd.Flags().StringVar(&note, "note", "Created via pcbagent detect", "free text note stored with the image")
	return cmd
}

func detectionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detections",
		Short: "List stored detections grouped by board image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			items, err := rt.Records().ListDetections(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"items": items})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
