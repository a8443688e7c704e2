package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/guardian/internal/display"
	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/engine"
)

func newPredictCmd(c *cli) *cobra.Command {
	var (
		source string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "predict <file>",
		Short: "Classify one audio file, escalating if it is a cry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.predict(cmd.Context(), args[0], source, asJSON)
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "source id the verdict is recorded under")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the verdict as JSON")
	return cmd
}

func (c *cli) predict(ctx context.Context, path, source string, asJSON bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	console := display.NewConsole(nil)
	var opts []engine.Option
	if !asJSON {
		opts = append(opts, engine.WithObserver(escalationsOnly{console}))
	}
	a, err := build(ctx, c.cfg, c.log, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	clip := domain.AudioClip{Data: data, ContentType: contentTypeForExt(filepath.Ext(path))}
	res, err := a.engine.Predict(ctx, clip, source)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			domain.Verdict
			Escalated bool `json:"escalated"`
		}{res.Verdict, res.Escalated}); err != nil {
			return err
		}
	} else {
		console.PrintVerdict(res.Verdict, res.Escalated)
	}

	// Let a started escalation report before exiting.
	a.engine.Wait()
	return nil
}

// escalationsOnly forwards escalation outcomes; the verdict is printed by
// the command itself.
type escalationsOnly struct{ c *display.Console }

func (e escalationsOnly) OnVerdict(domain.Verdict, bool)            {}
func (e escalationsOnly) OnEscalation(o domain.EscalationOutcome) { e.c.PrintOutcome(o) }

func contentTypeForExt(ext string) string {
	switch ext {
	case ".wav", ".wave":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	}
	return ""
}

func extForContentType(ct string) string {
	switch ct {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	}
	return ".audio"
}
