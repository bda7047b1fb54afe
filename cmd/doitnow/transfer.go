package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/cfxgy/DoItNow/pkg/fsio"
	"github.com/cfxgy/DoItNow/pkg/store"
	"github.com/cfxgy/DoItNow/pkg/transfer"
	"github.com/spf13/cobra"
)

type clipboardIO interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }

func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

const (
	formatJSON     = "json"
	formatMarkdown = "md"
)

type transferFlags struct {
	file      string
	clipboard bool
	format    string
	task      string
}

func (f *transferFlags) validate(needTask bool) error {
	switch f.format {
	case formatJSON, formatMarkdown:
	default:
		return fmt.Errorf("%w: unknown format %q (use json or md)", store.ErrInvalidArgument, f.format)
	}
	if f.file != "" && f.clipboard {
		return fmt.Errorf("%w: use either --file or --clipboard", store.ErrInvalidArgument)
	}
	if needTask && f.format == formatMarkdown && f.task == "" {
		return fmt.Errorf("%w: markdown export needs --task", store.ErrInvalidArgument)
	}
	return nil
}

func (a *app) transferCodec() *transfer.Codec {
	return transfer.New(a.tasks, transfer.WithLogger(a.logger))
}

func newExportCmd(a *app) *cobra.Command {
	f := &transferFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks to stdout, a file, or the clipboard",
		Long: `Export writes every task as a JSON payload that another install can
import. With --format md a single task (--task) is written as a markdown
checklist instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(true); err != nil {
				return err
			}
			c := a.transferCodec()

			if f.format == formatJSON && f.file != "" {
				if err := c.ExportFile(f.file); err != nil {
					return err
				}
				n := a.tasks.Len()
				return a.reportTransfer("exported", n, fmt.Sprintf("Exported %d tasks to %s", n, f.file))
			}

			var text string
			var err error
			n := a.tasks.Len()
			if f.format == formatMarkdown {
				n = 1
				t, rerr := a.resolveTask(f.task)
				if rerr != nil {
					return rerr
				}
				text, err = c.ExportMarkdown(t.ID)
			} else {
				text, err = c.ExportString()
			}
			if err != nil {
				return err
			}

			switch {
			case f.clipboard:
				if err := a.clipboard.WriteAll(text); err != nil {
					return fmt.Errorf("copying to clipboard: %w", err)
				}
				return a.reportTransfer("exported", n, fmt.Sprintf("Copied %d tasks to the clipboard", n))
			case f.file != "":
				if err := writeTextFile(f.file, text); err != nil {
					return err
				}
				return a.reportTransfer("exported", n, fmt.Sprintf("Exported %d tasks to %s", n, f.file))
			default:
				fmt.Fprintln(a.stdout, text)
				return nil
			}
		},
	}
	addTransferFlags(cmd, f)
	cmd.Flags().StringVar(&f.task, "task", "", "Task id for markdown export")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	f := &transferFlags{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import tasks from stdin, a file, or the clipboard",
		Long: `Import merges tasks by id. Tasks whose id already exists are skipped,
so importing the same data twice adds nothing the second time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(false); err != nil {
				return err
			}
			c := a.transferCodec()

			var n int
			var err error
			switch {
			case f.file != "" && f.format == formatJSON:
				n, err = c.ImportFile(f.file)
			default:
				text, rerr := a.readImportText(cmd.InOrStdin(), f)
				if rerr != nil {
					return rerr
				}
				if f.format == formatMarkdown {
					n, err = c.ImportMarkdown(text)
				} else {
					n, err = c.ImportString(text)
				}
			}
			if err != nil {
				return err
			}
			return a.reportTransfer("imported", n, fmt.Sprintf("Imported %d new tasks", n))
		},
	}
	addTransferFlags(cmd, f)
	return cmd
}

func addTransferFlags(cmd *cobra.Command, f *transferFlags) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read from or write to this file")
	cmd.Flags().BoolVarP(&f.clipboard, "clipboard", "c", false, "Use the system clipboard")
	cmd.Flags().StringVar(&f.format, "format", formatJSON, "Payload format: json or md")
}

func (a *app) readImportText(stdin io.Reader, f *transferFlags) (string, error) {
	switch {
	case f.clipboard:
		text, err := a.clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("reading clipboard: %w", err)
		}
		return text, nil
	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return "", fmt.Errorf("%w: reading %s: %v", fsio.ErrIO, f.file, err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
}

func (a *app) reportTransfer(key string, n int, msg string) error {
	if a.jsonOut {
		return writeJSON(a.stdout, map[string]int{key: n})
	}
	fmt.Fprintln(a.stdout, msg)
	return nil
}

func writeTextFile(path, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return fsio.WriteFile(path, []byte(text), 0644)
}
