package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/forgo/progression/internal/model"
)

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) report(r *model.DailyCronReport) {
	if r.Skipped {
		p.line("%s  already ran, skipped", r.Date)
		return
	}
	status := "ok"
	if !r.AllSucceeded {
		status = "FAILED"
	}
	p.line("%s  %s  %d change(s)", r.Date, status, len(r.Changes()))
	for _, j := range r.Jobs {
		if j.Success {
			p.line("  %-24s %4d item(s)", j.Job, j.ItemsProcessed)
		} else {
			p.line("  %-24s error: %s", j.Job, j.Error)
		}
	}
}

// print writes v as JSON under --json, else runs the text renderer
func (c *cli) print(cmd *cobra.Command, v interface{}, text func(p *printer)) error {
	if c.asJSON {
		return writeJSON(cmd.OutOrStdout(), v)
	}
	p := &printer{w: cmd.OutOrStdout()}
	text(p)
	return p.err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
