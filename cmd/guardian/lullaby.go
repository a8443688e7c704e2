package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/guardian/internal/display"
	"github.com/hammamikhairi/guardian/internal/library"
)

func newLullabyCmd(c *cli) *cobra.Command {
	var (
		out   string
		save  bool
		owner string
	)
	cmd := &cobra.Command{
		Use:   "lullaby <topic...>",
		Short: "Write and narrate a lullaby for a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.lullaby(cmd.Context(), strings.Join(args, " "), out, save, owner)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write audio to this file (default lullaby.<ext>)")
	cmd.Flags().BoolVar(&save, "save", false, "also store the result in the lullaby library")
	cmd.Flags().StringVar(&owner, "owner", "", "library owner when --save is set")
	return cmd
}

func (c *cli) lullaby(ctx context.Context, topic, out string, save bool, owner string) error {
	a, err := build(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer a.Close()

	console := display.NewConsole(nil)
	if save {
		rec, err := a.library.Generate(ctx, library.GenerateRequest{Topic: topic, OwnerID: owner})
		if err != nil {
			return err
		}
		console.PrintHint("saved " + rec.DisplayName + " as " + rec.ID)
		if out == "" {
			return nil
		}
		_, data, err := a.library.Content(ctx, rec.ID)
		if err != nil {
			return err
		}
		return writeAudioFile(console, out, data)
	}

	data, contentType, err := a.engine.GenerateLullaby(ctx, topic)
	if err != nil {
		return err
	}
	if out == "" {
		out = "lullaby" + extForContentType(contentType)
	}
	return writeAudioFile(console, out, data)
}

func writeAudioFile(console *display.Console, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	console.PrintHint("wrote " + path)
	return nil
}
