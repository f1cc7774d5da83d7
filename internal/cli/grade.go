package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"quiz-grading-engine/internal/app"
	"quiz-grading-engine/internal/config"
	"quiz-grading-engine/internal/domain"

	"github.com/spf13/cobra"
)

// NewGradeCmd grades a response file against a quiz version offline.
func NewGradeCmd() *cobra.Command {
	var quizFile, versionID, responseFile string
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a JSON response against a quiz version from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrade(cmd.OutOrStdout(), cmd.InOrStdin(), quizFile, versionID, responseFile)
		},
	}
	cmd.Flags().StringVar(&quizFile, "quiz", "config/quizzes.yaml", "YAML file of quiz versions")
	cmd.Flags().StringVar(&versionID, "version", "", "quiz version id")
	cmd.Flags().StringVar(&responseFile, "response", "-", "JSON object of answers keyed by question name (- for stdin)")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func runGrade(out io.Writer, in io.Reader, quizFile, versionID, responseFile string) error {
	versions, err := config.LoadQuizVersions(quizFile)
	if err != nil {
		return err
	}
	var version *domain.QuizVersion
	for i := range versions {
		if versions[i].ID == versionID {
			version = &versions[i]
			break
		}
	}
	if version == nil {
		return fmt.Errorf("%w: %s", domain.ErrQuizNotFound, versionID)
	}

	if responseFile != "-" {
		f, err := os.Open(responseFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	var response map[string]domain.Value
	if err := json.NewDecoder(in).Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	result := app.NewEngine().Grade(*version, response)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
