// Copyright (c) 2026, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/choria-io/fisk"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/choria-io/adaptiveform"
	"github.com/choria-io/adaptiveform/drafts"
	"github.com/choria-io/adaptiveform/forms"
	"github.com/choria-io/adaptiveform/render"
)

var (
	schemaFile     string
	dataFile       string
	templateFile   string
	engineString   string
	leftDelimiter  string
	rightDelimiter string
	draftFile      string
	draftKey       string
	logLevel       string
	version        string
)

func main() {
	app := fisk.New("adaptiveform", "Adaptive Form runtime")
	app.Version(version)

	app.Help = `
Loads JSON or YAML adaptive form definitions, evaluates their rules and
validates, inspects, exports or interactively fills them.
`
	app.Flag("log-level", "Logging level for rule and event processing").Default("error").EnumVar(&logLevel, "debug", "info", "warn", "error", "off")

	validate := app.Command("validate", "Validates data against a form").Action(validateAction)
	validate.Arg("schema", "The form definition").Required().ExistingFileVar(&schemaFile)
	validate.Flag("data", "Loads data from a JSON or YAML file").PlaceHolder("FILE").ExistingFileVar(&dataFile)

	export := app.Command("export", "Exports the data of a form").Action(exportAction)
	export.HelpLong(`
Exports the data a form holds after importing data and running all rules.

The data is shown as JSON or rendered using a Go or Jet template.
`)
	export.Arg("schema", "The form definition").Required().ExistingFileVar(&schemaFile)
	export.Flag("data", "Loads data from a JSON or YAML file").PlaceHolder("FILE").ExistingFileVar(&dataFile)
	renderFlags(export)

	fill := app.Command("fill", "Fills a form using interactive prompts").Action(fillAction)
	fill.Arg("schema", "The form definition").Required().ExistingFileVar(&schemaFile)
	fill.Flag("data", "Loads data from a JSON or YAML file").PlaceHolder("FILE").ExistingFileVar(&dataFile)
	fill.Flag("draft", "Database to keep drafts in").PlaceHolder("DB").StringVar(&draftFile)
	fill.Flag("key", "The draft to resume and save").PlaceHolder("KEY").StringVar(&draftKey)
	renderFlags(fill)

	state := app.Command("state", "Shows the state of every form item").Action(stateAction)
	state.Arg("schema", "The form definition").Required().ExistingFileVar(&schemaFile)
	state.Flag("data", "Loads data from a JSON or YAML file").PlaceHolder("FILE").ExistingFileVar(&dataFile)

	app.MustParseWithUsage(os.Args[1:])
}

func renderFlags(cmd *fisk.CmdClause) {
	cmd.Flag("template", "Renders the data using a template").PlaceHolder("FILE").ExistingFileVar(&templateFile)
	cmd.Flag("engine", "The template engine to use (jet, go)").Default("go").EnumVar(&engineString, "jet", "go")
	cmd.Flag("left", "Left delimiter").StringVar(&leftDelimiter)
	cmd.Flag("right", "Right delimiter").StringVar(&rightDelimiter)
}

type slogLogger struct {
	log *slog.Logger
}

func (l *slogLogger) Debugf(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *slogLogger) Infof(format string, v ...any)  { l.log.Info(fmt.Sprintf(format, v...)) }
func (l *slogLogger) Warnf(format string, v ...any)  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l *slogLogger) Errorf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }

func newLogger() *slogLogger {
	return &slogLogger{log: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))}
}

func loadData() (map[string]any, error) {
	if dataFile == "" {
		return nil, nil
	}

	df, err := os.ReadFile(dataFile)
	if err != nil {
		return nil, err
	}

	return adaptiveform.ParseData(df)
}

// loadForm creates the form with logging configured and imports data when given
func loadForm(ctx context.Context, schema map[string]any, data map[string]any) (*adaptiveform.Form, error) {
	level, err := adaptiveform.ParseLogLevel(logLevel)
	if err != nil {
		return nil, err
	}

	form, err := adaptiveform.CreateFormInstance(schema,
		adaptiveform.WithLogger(newLogger()),
		adaptiveform.WithLogLevel(level),
		adaptiveform.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	if data != nil {
		err = form.ImportData(data)
		if err != nil {
			return nil, err
		}
	}

	return form, nil
}

func loadFormFiles(ctx context.Context) (*adaptiveform.Form, error) {
	data, err := loadData()
	if err != nil {
		return nil, err
	}

	schema, err := adaptiveform.LoadSchemaFile(schemaFile)
	if err != nil {
		return nil, err
	}

	return loadForm(ctx, schema, data)
}

func validateAction(_ *fisk.ParseContext) error {
	form, err := loadFormFiles(context.Background())
	if err != nil {
		return err
	}

	errs := form.Validate()
	if len(errs) == 0 {
		fmt.Println("Form is valid")
		return nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Label", "Errors"})
	for _, e := range errs {
		var lbl string
		if n := form.GetElement(e.FieldName); n != nil {
			lbl = n.Label()
		}
		t.AppendRow(table.Row{e.FieldName, lbl, strings.Join(e.ErrorMessages, "\n")})
	}
	fmt.Println(t.Render())

	return fmt.Errorf("form is not valid, %d errors found", len(errs))
}

func exportAction(_ *fisk.ParseContext) error {
	form, err := loadFormFiles(context.Background())
	if err != nil {
		return err
	}

	return show(form.ExportData())
}

func fillAction(_ *fisk.ParseContext) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	data, err := loadData()
	if err != nil {
		return err
	}

	var store *drafts.Store
	if draftFile != "" {
		store, err = drafts.Open(draftFile, drafts.WithLogger(newLogger()))
		if err != nil {
			return err
		}
		defer store.Close()
	}

	schema, err := adaptiveform.LoadSchemaFile(schemaFile)
	if err != nil {
		return err
	}
	formID := draftForm(schema)

	if store != nil && draftKey != "" {
		draft, err := store.Load(ctx, formID, draftKey)
		switch {
		case errors.Is(err, drafts.ErrNotFound):
		case err != nil:
			return err
		default:
			fmt.Printf("Resuming draft %s saved %s\n\n", draft.Key, draft.Saved.Local().Format("2006-01-02 15:04:05"))
			data = draft.Data
		}
	}

	form, err := loadForm(ctx, schema, data)
	if err != nil {
		return err
	}

	res, err := forms.Fill(ctx, form)
	if err != nil {
		if store == nil {
			return err
		}

		partial, _ := form.ExportData().(map[string]any)
		key, serr := store.Save(context.Background(), formID, draftKey, partial)
		if serr != nil {
			return fmt.Errorf("%w: saving draft failed: %v", err, serr)
		}

		return fmt.Errorf("%w: draft saved as %s", err, key)
	}

	if store != nil && draftKey != "" {
		err = store.Delete(ctx, formID, draftKey)
		if err != nil && !errors.Is(err, drafts.ErrNotFound) {
			return err
		}
	}

	return show(res)
}

func stateAction(_ *fisk.ParseContext) error {
	form, err := loadFormFiles(context.Background())
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "ID", "Kind", "Visible", "Enabled", "Valid", "Value"})

	form.Visit(func(n adaptiveform.Node) {
		name := n.QualifiedName()
		if name == "" {
			name = "(transparent)"
		}

		valid, value := "", ""
		if f, ok := n.(*adaptiveform.Field); ok {
			valid = fmt.Sprintf("%t", f.IsValid())
			if v := f.Value(); v != nil {
				j, _ := json.Marshal(v)
				value = string(j)
			}
		}

		t.AppendRow(table.Row{name, n.ID(), n.Kind(), n.Visible(), n.Enabled(), valid, value})
	})

	fmt.Println(t.Render())

	return nil
}

// draftForm names the drafts bucket of a form by its id or the schema file name
func draftForm(schema map[string]any) string {
	if id, ok := schema["id"].(string); ok && id != "" {
		return id
	}

	return strings.TrimSuffix(filepath.Base(schemaFile), filepath.Ext(schemaFile))
}

// show prints data as JSON or renders it with the configured template
func show(data any) error {
	if templateFile == "" {
		j, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(j))

		return nil
	}

	r, err := render.New(render.Config{
		Engine:               render.Engine(engineString),
		TemplateDirectory:    filepath.Dir(templateFile),
		CustomLeftDelimiter:  leftDelimiter,
		CustomRightDelimiter: rightDelimiter,
	})
	if err != nil {
		return err
	}
	r.Logger(newLogger())

	out, err := r.RenderFile(templateFile, data)
	if err != nil {
		return err
	}
	fmt.Print(out)

	return nil
}
