package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signflow/signflow/internal/config"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages and validate their configs",
	Long: `Languages loads config_<lang>.yaml for every supported language from
--config-dir, checks that it is valid and that its model file exists, and
prints a summary. It exits non-zero if any language is unusable.`,
	RunE: runLanguages,
}

func runLanguages(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tSTATUS\tWINDOW\tSTRIDE\tINTERVAL\tTHRESHOLD\tCLASSES\tMODEL")

	failed := 0
	for _, code := range cfg.Languages {
		lang, err := config.LoadLanguage(cfg.ConfigDir, code)
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s\t%s\t\t\t\t\t\t%s\n", code, "invalid: "+err.Error(), config.LanguagePath(cfg.ConfigDir, code))
			continue
		}

		status := "ok"
		if _, err := os.Stat(lang.ModelPath); err != nil {
			failed++
			status = "model missing"
		}
		if code == cfg.DefaultLanguage {
			status += " (default)"
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.2f\t%d\t%s\n",
			code, status, lang.WindowSize, lang.EffectiveStride(), lang.FrameInterval,
			lang.Threshold, len(lang.Labels), lang.ModelPath)
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d languages are unusable", failed, len(cfg.Languages))
	}
	return nil
}
