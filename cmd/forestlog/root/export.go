package root

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"forestlog/internal/service"
)

func newExportCmd() *cobra.Command {
	var (
		userID string
		email  string
		format string
		from   string
		to     string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's history as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" && strings.TrimSpace(email) == "" {
				return fmt.Errorf("one of --user or --email is required")
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if userID == "" {
				user, err := a.svc.Repo.GetUserByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(email)))
				if err != nil {
					return fmt.Errorf("find user %s: %w", email, err)
				}
				userID = user.ID
			}
			file, err := a.svc.Export(cmd.Context(), userID, format, service.ExportRange{From: from, To: to})
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(file.Data)
				return err
			}
			if out == "." {
				out = file.Filename
			}
			if err := os.WriteFile(out, file.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(file.Data), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "id of the user to export")
	cmd.Flags().StringVar(&email, "email", "", "email of the user to export")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or csv")
	cmd.Flags().StringVar(&from, "from", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day to include (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout, . for the default file name")
	return cmd
}
