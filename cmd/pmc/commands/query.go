package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"pmcautomation/cmd/pmc/globals"
	"pmcautomation/cmd/pmc/utils"
	"pmcautomation/internal/components/restyutil"
	"pmcautomation/internal/datasource"
	"pmcautomation/internal/keychain"
	"pmcautomation/internal/keychain/db"
	"pmcautomation/internal/report"
	"pmcautomation/internal/sources/classic"
	"pmcautomation/internal/sources/connect"
	"pmcautomation/internal/sources/ux"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type queryFlags struct {
	cred    *string
	inputs  *[]string
	out     *string
	print   *bool
	mailTo  *[]string
	subject *string
}

func addQueryFlags(cmd *cobra.Command) queryFlags {
	return queryFlags{
		cred:    cmd.Flags().String("cred", "", "An api key, or a reference key looked up in the credential file and keychain."),
		inputs:  cmd.Flags().StringArray("input", nil, "An input as name=value, repeatable."),
		out:     cmd.Flags().String("out", "", "Save the rows as csv to this file, relative paths land in the batch folder."),
		print:   cmd.Flags().Bool("print", false, "Print the rows as a table."),
		mailTo:  cmd.Flags().StringSlice("mail-to", nil, "Mail the csv to these addresses (needs --out and smtp config)."),
		subject: cmd.Flags().String("subject", "", "The subject of the mail, defaults to the data source."),
	}
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Calls a data source and exports its rows.",
}

var (
	apiFlags     queryFlags
	apiUrl       *string
	apiMethod    *string
	apiPcns      *[]string
	uxFlags      queryFlags
	uxId         *string
	uxTemplate   *bool
	uxKeep       *[]string
	uxPurge      *bool
	classicFlags queryFlags
	classicId    *string
)

func init() {
	apiFlags = addQueryFlags(queryApiCmd)
	apiUrl = queryApiCmd.Flags().String("url", "", "The Connect api url, production urls are rewritten for --test.")
	apiMethod = queryApiCmd.Flags().String("method", "GET", "The http method.")
	apiPcns = queryApiCmd.Flags().StringSlice("pcn", nil, "The customer ids (PCNs) to query, one call each.")
	queryApiCmd.MarkFlagRequired("url")

	uxFlags = addQueryFlags(queryUxCmd)
	uxId = queryUxCmd.Flags().String("id", "", "The data source id.")
	uxTemplate = queryUxCmd.Flags().Bool("template", false, "Start from the input template of the data source in template_dir.")
	uxKeep = queryUxCmd.Flags().StringSlice("keep", nil, "Only keep these template inputs (before --input is applied).")
	uxPurge = queryUxCmd.Flags().Bool("purge-empty", false, "Drop inputs without a value.")
	queryUxCmd.MarkFlagRequired("id")

	classicFlags = addQueryFlags(queryClassicCmd)
	classicId = queryClassicCmd.Flags().String("id", "", "The data source key.")
	queryClassicCmd.MarkFlagRequired("id")

	queryCmd.AddCommand(queryApiCmd, queryUxCmd, queryClassicCmd)
	rootCmd.AddCommand(queryCmd)
}

func openKeychain(value *globals.Value) (keychain.Store, func() error, bool, error) {
	config := value.Config.Keychain
	if config.File == "" && config.Url == "" {
		return keychain.Store{}, nil, false, nil
	}
	database, err := config.OpenDB(db.Schema)
	if err != nil {
		return keychain.Store{}, nil, false, fmt.Errorf("open keychain: %w", err)
	}
	return keychain.NewStore(database, value.Clock, value.Tel), database.Close, true, nil
}

func newSource(cmd *cobra.Command, kind datasource.Kind, raw string) (datasource.Source, error) {
	ctx := cmd.Context()
	value := globals.Get(ctx)
	if raw == "" {
		return datasource.Source{}, fmt.Errorf("--cred is required")
	}

	stores := datasource.ChainStore{datasource.NewFileStore(value.Config.CredentialFile)}
	store, closeKeychain, ok, err := openKeychain(value)
	if err != nil {
		return datasource.Source{}, err
	}
	if ok {
		defer closeKeychain()
		stores = append(stores, store)
	}

	src, err := datasource.NewSource(ctx, datasource.SourceOptions{
		Kind:       kind,
		Credential: datasource.ParseCredential(kind, raw),
		Test:       value.Test,
		References: stores,
	})
	if err == nil {
		return src, nil
	}
	message, err := utils.CredentialPrompt(kind, raw, value.Config.CredentialFile, ok, err)
	if err != nil {
		return datasource.Source{}, err
	}

	in, out := stdio(cmd)
	auth, err := utils.PromptBasicAuth(in, out, message)
	if err != nil {
		return datasource.Source{}, err
	}
	return datasource.NewSource(ctx, datasource.SourceOptions{
		Kind:       kind,
		Credential: auth,
		Test:       value.Test,
	})
}

func httpOptions(value *globals.Value) restyutil.Options {
	opts := restyutil.DefaultOptions()
	if value.Config.RateLimit > 0 {
		opts.RateLimit = rate.Limit(value.Config.RateLimit)
	}
	opts.Output = value.Output
	return opts
}

func applyInputs(in *datasource.Input, pairs []string) error {
	fields, err := utils.ParseInputs(pairs)
	if err != nil {
		return err
	}
	in.SetFields(fields)
	return nil
}

func export(cmd *cobra.Command, flags queryFlags, res datasource.Response) error {
	ctx := cmd.Context()
	value := globals.Get(ctx)

	if *flags.print {
		utils.RenderResponse(cmd.OutOrStdout(), res)
	}

	path := *flags.out
	if path == "" {
		if len(*flags.mailTo) > 0 {
			return fmt.Errorf("--mail-to needs --out")
		}
		if !*flags.print {
			slog.Info("query finished", "id", res.ID, "rows", res.Len())
		}
		return nil
	}
	if value.BatchFolder != "" && !filepath.IsAbs(path) {
		path = filepath.Join(value.BatchFolder, path)
	}
	err := res.SaveCSV(path)
	if err != nil {
		return err
	}
	slog.Info("saved rows", "id", res.ID, "rows", res.Len(), "path", path)

	if len(*flags.mailTo) == 0 {
		return nil
	}
	subject := *flags.subject
	if subject == "" {
		subject = fmt.Sprintf("%s data source %s", strings.ToUpper(string(res.Kind)), res.ID)
	}
	mailer := report.NewMailer(value.Config.Smtp, value.Tel)
	return mailer.SendCSV(
		ctx, *flags.mailTo, subject,
		fmt.Sprintf("%d rows exported from %s (run %s).", res.Len(), res.ID, value.RunID),
		path,
	)
}

var queryApiCmd = &cobra.Command{
	Use:   "api --url <url> [--method GET] [--pcn <pcn>...] [--input name=value...]",
	Short: "Calls a Plex Connect api url with an api key.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value := globals.Get(cmd.Context())
		src, err := newSource(cmd, datasource.KindAPI, *apiFlags.cred)
		if err != nil {
			return err
		}
		client, err := connect.NewClient(src, value.Tel, httpOptions(value))
		if err != nil {
			return err
		}

		in, err := datasource.NewAPIInput(*apiUrl, *apiMethod)
		if err != nil {
			return err
		}
		err = applyInputs(in, *apiFlags.inputs)
		if err != nil {
			return err
		}

		res, err := client.Query(cmd.Context(), in, *apiPcns...)
		if err != nil {
			return err
		}
		return export(cmd, apiFlags, res)
	},
}

var queryUxCmd = &cobra.Command{
	Use:   "ux --id <data source id> [--template] [--keep <input>...] [--input name=value...]",
	Short: "Executes a UX data source with webservice credentials.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value := globals.Get(cmd.Context())
		src, err := newSource(cmd, datasource.KindUX, *uxFlags.cred)
		if err != nil {
			return err
		}
		client, err := ux.NewClient(src, value.Tel, httpOptions(value))
		if err != nil {
			return err
		}

		in, err := datasource.NewInput(*uxId, string(datasource.KindUX))
		if err != nil {
			return err
		}
		if *uxTemplate {
			err = in.LoadTemplate(value.Config.TemplateDir)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("keep") {
				in.Keep(*uxKeep...)
			}
		}
		err = applyInputs(in, *uxFlags.inputs)
		if err != nil {
			return err
		}
		if *uxPurge {
			in.PurgeEmpty()
		}

		res, err := client.Query(cmd.Context(), in)
		if err != nil {
			return err
		}
		return export(cmd, uxFlags, res)
	},
}

var queryClassicCmd = &cobra.Command{
	Use:   "classic --id <data source key> [--input name=value...]",
	Short: "Executes a classic data source through the SOAP web service.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value := globals.Get(cmd.Context())
		src, err := newSource(cmd, datasource.KindClassic, *classicFlags.cred)
		if err != nil {
			return err
		}
		client, err := classic.NewClient(src, value.Tel, httpOptions(value))
		if err != nil {
			return err
		}

		in, err := datasource.NewInput(*classicId, string(datasource.KindClassic))
		if err != nil {
			return err
		}
		err = applyInputs(in, *classicFlags.inputs)
		if err != nil {
			return err
		}

		res, err := client.Query(cmd.Context(), in)
		if err != nil {
			return err
		}
		return export(cmd, classicFlags, res)
	},
}
