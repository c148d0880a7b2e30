package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtasks/internal/config"
	"github.com/daviddao/mailtasks/internal/display"
	"github.com/daviddao/mailtasks/internal/planner"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config and AI context file",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := filepath.Dir(configPath)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}

		files := []struct {
			path    string
			content string
		}{
			{configPath, config.Template},
			{filepath.Join(dir, "context.yaml"), planner.ContextTemplate},
		}
		for _, f := range files {
			wrote, err := writeIfMissing(f.path, f.content, initForce)
			if err != nil {
				return err
			}
			if quietFlag {
				continue
			}
			if wrote {
				display.SuccessMsg("Wrote %s", f.path)
			} else {
				display.WarnMsg("%s exists, use --force to overwrite", f.path)
			}
		}

		if !quietFlag {
			fmt.Println()
			display.SubHeader("Next steps:")
			fmt.Printf("  1. Put your Google OAuth client in %s\n", filepath.Join(dir, "credentials.json"))
			fmt.Println("  2. mt auth login")
			fmt.Println("  3. mt auth set-key gemini_api_key")
			fmt.Println("  4. mt labels --create")
			fmt.Println("  5. mt run")
		}
		return nil
	},
}

func writeIfMissing(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
