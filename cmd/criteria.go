package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/criteria"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/store"
)

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Manage evaluation criteria",
}

// -- criteria list --

var criteriaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List criteria",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rawStatus, _ := cmd.Flags().GetString("status")
		version, _ := cmd.Flags().GetString("version")
		role, _ := cmd.Flags().GetString("role")
		prefix, _ := cmd.Flags().GetString("prefix")
		asJSON, _ := cmd.Flags().GetBool("json")

		status, err := store.ParseCriteriaStatus(rawStatus)
		if err != nil {
			return err
		}

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		cs, err := b.Store.ListCriteria(ctx, store.CriteriaFilter{
			Status:   status,
			Version:  version,
			Role:     role,
			IDPrefix: prefix,
		})
		if err != nil {
			return eris.Wrap(err, "criteria list")
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cs)
		}
		if len(cs) == 0 {
			fmt.Fprintln(os.Stderr, "No criteria found.")
			return nil
		}
		formatCriteria(cmd.OutOrStdout(), cs)
		return nil
	},
}

// -- criteria import --

var criteriaImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import criteria from a CSV, XLSX or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cs, rowErrs, err := readCriteriaFile(args[0])
		if err != nil {
			return err
		}

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.Store.UpsertCriteria(ctx, cs)
		if err != nil {
			return eris.Wrap(err, "criteria import")
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Imported %d criteria, %d rows rejected\n", n, len(rowErrs))
		for _, e := range rowErrs {
			_, _ = fmt.Fprintf(out, "  %s\n", e.Error())
		}
		return nil
	},
}

// readCriteriaFile decodes criteria by file extension. YAML seeds are
// validated per entry; spreadsheet rows report their own errors.
func readCriteriaFile(path string) ([]model.Criterion, []error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		seeds, err := criteria.LoadYAML(path)
		if err != nil {
			return nil, nil, err
		}
		var (
			cs   []model.Criterion
			errs []error
		)
		for i, c := range seeds {
			if err := criteria.Validate(c); err != nil {
				errs = append(errs, eris.Wrapf(err, "entry %d", i+1))
				continue
			}
			cs = append(cs, c)
		}
		return cs, errs, nil
	default:
		res, err := criteria.ImportFile(path)
		if err != nil {
			return nil, nil, err
		}
		errs := make([]error, len(res.Errors))
		for i, e := range res.Errors {
			errs[i] = e
		}
		return res.Criteria, errs, nil
	}
}

// -- criteria export --

var criteriaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export criteria as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		outPath, _ := cmd.Flags().GetString("out")

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		cs, err := b.Store.ListCriteria(ctx, store.CriteriaFilter{})
		if err != nil {
			return eris.Wrap(err, "criteria export")
		}

		if outPath == "" {
			return criteria.Encode(cmd.OutOrStdout(), cs)
		}
		f, err := os.Create(outPath)
		if err != nil {
			return eris.Wrapf(err, "create %s", outPath)
		}
		defer f.Close() //nolint:errcheck
		if err := criteria.Encode(f, cs); err != nil {
			return err
		}
		zap.L().Info("criteria exported", zap.String("path", outPath), zap.Int("count", len(cs)))
		return nil
	},
}

// -- criteria derive --

var criteriaDeriveCmd = &cobra.Command{
	Use:   "derive <id>",
	Short: "Print the prompt derived from a criterion's parts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		version, _ := cmd.Flags().GetString("version")
		save, _ := cmd.Flags().GetBool("save")

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		c, err := b.Store.GetCriterion(ctx, args[0], version)
		if err != nil {
			return eris.Wrap(err, "criteria derive")
		}
		all, err := b.Store.ListCriteria(ctx, store.CriteriaFilter{})
		if err != nil {
			return eris.Wrap(err, "criteria derive")
		}

		prompt := criteria.DerivePrompt(criteria.PartsOf(*c, criteria.RelatedQuestions(all, *c)))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), prompt)

		if save {
			c.Prompt = prompt
			if _, err := b.Store.UpsertCriteria(ctx, []model.Criterion{*c}); err != nil {
				return eris.Wrap(err, "criteria derive: save")
			}
		}
		return nil
	},
}

// -- criteria activate / deactivate / delete --

func setActiveCmd(use, short string, active bool) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			version, _ := cmd.Flags().GetString("version")

			b, err := openBackends(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := b.Store.SetCriterionActive(ctx, args[0], version, active)
			if err != nil {
				return eris.Wrapf(err, "criteria %s", use)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated %d criteria version(s)\n", n)
			return nil
		},
	}
	c.Flags().String("version", "", "only this version (default: all versions)")
	return c
}

var criteriaDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a criterion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		version, _ := cmd.Flags().GetString("version")

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.Store.DeleteCriterion(ctx, args[0], version)
		if err != nil {
			return eris.Wrap(err, "criteria delete")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d criteria version(s)\n", n)
		return nil
	},
}

func init() {
	criteriaListCmd.Flags().String("status", "all", "active, inactive or all")
	criteriaListCmd.Flags().String("version", "", "filter by version")
	criteriaListCmd.Flags().String("role", "", "filter by role")
	criteriaListCmd.Flags().String("prefix", "", "filter by id prefix")
	criteriaListCmd.Flags().Bool("json", false, "print JSON")

	criteriaExportCmd.Flags().String("out", "", "write to file instead of stdout")

	criteriaDeriveCmd.Flags().String("version", model.DefaultCriterionVersion, "criterion version")
	criteriaDeriveCmd.Flags().Bool("save", false, "store the derived prompt on the criterion")

	criteriaDeleteCmd.Flags().String("version", "", "only this version (default: all versions)")

	criteriaCmd.AddCommand(criteriaListCmd)
	criteriaCmd.AddCommand(criteriaImportCmd)
	criteriaCmd.AddCommand(criteriaExportCmd)
	criteriaCmd.AddCommand(criteriaDeriveCmd)
	criteriaCmd.AddCommand(setActiveCmd("activate", "Mark a criterion active", true))
	criteriaCmd.AddCommand(setActiveCmd("deactivate", "Mark a criterion inactive", false))
	criteriaCmd.AddCommand(criteriaDeleteCmd)
	rootCmd.AddCommand(criteriaCmd)
}
