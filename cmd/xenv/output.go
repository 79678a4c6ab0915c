package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"xenvman/pkg/container"
	"xenvman/pkg/env"
)

func printEnv(out io.Writer, e *env.OutputEnv) {
	fmt.Fprintf(out, "   📋 ID: %s\n", e.ID)
	if e.Name != "" {
		fmt.Fprintf(out, "   🏷️  Name: %s\n", e.Name)
	}
	fmt.Fprintf(out, "   🌐 External address: %s\n", e.ExternalAddress)
	if e.KeepAlive != "" {
		fmt.Fprintf(out, "   ⏱️  Keep alive: %s\n", e.KeepAlive)
	}
	if created, err := e.CreatedAt(); err == nil && !created.IsZero() {
		fmt.Fprintf(out, "   📅 Created: %s\n", created.Format("2006-01-02 15:04:05"))
	}

	refs := e.Containers()
	if len(refs) == 0 {
		fmt.Fprintln(out, "\nNo containers.")
		return
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEMPLATE\tINDEX\tCONTAINER\tID\tHOSTNAME\tPORTS")
	for _, ref := range refs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			ref.Template,
			ref.Index,
			ref.Container,
			truncateString(ref.Data.ID, 12),
			ref.Data.Hostname,
			formatPorts(e.ExternalAddress, ref.Data.Ports),
		)
	}
	w.Flush()
}

func printTemplates(out io.Writer, tpls map[string]*env.TplInfo) {
	names := make([]string, 0, len(tpls))
	for name := range tpls {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEMPLATE\tPARAMETERS\tDESCRIPTION")
	for _, name := range names {
		info := tpls[name]
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, formatParams(info.Parameters), info.Description)
	}
	w.Flush()
}

func printStatuses(out io.Writer, statuses []*container.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEMPLATE\tINDEX\tCONTAINER\tNAME\tIMAGE\tSTATE\tPORTS")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			s.Template,
			s.Index,
			s.Container,
			orDash(s.Name),
			orDash(s.Image),
			orDash(s.State),
			formatHostPorts(s.Ports),
		)
	}
	w.Flush()
}

// Utility functions for formatting output

func truncateString(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatPorts renders exposed ports as "port->address:external", in port order
func formatPorts(address string, ports map[string]int) string {
	if len(ports) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(ports))
	for port := range ports {
		keys = append(keys, port)
	}
	sort.Strings(keys)

	portStrings := make([]string, 0, len(keys))
	for _, port := range keys {
		portStrings = append(portStrings, fmt.Sprintf("%s->%s:%d", port, address, ports[port]))
	}

	return strings.Join(portStrings, ", ")
}

func formatHostPorts(ports map[string]string) string {
	if len(ports) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(ports))
	for port := range ports {
		keys = append(keys, port)
	}
	sort.Strings(keys)

	portStrings := make([]string, 0, len(keys))
	for _, port := range keys {
		portStrings = append(portStrings, fmt.Sprintf("%s:%s", ports[port], port))
	}

	return strings.Join(portStrings, ", ")
}

// formatParams lists parameter names, mandatory ones marked with "*"
func formatParams(params map[string]*env.TplInfoParam) string {
	if len(params) == 0 {
		return "-"
	}

	names := make([]string, 0, len(params))
	for name, p := range params {
		if p != nil && p.Mandatory {
			name += "*"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return strings.Join(names, ", ")
}
