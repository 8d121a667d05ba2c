package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`                _ _       _     _                         _ `, "#34d399"},
	{` ___ __ __ __  (_) |_ ___| |__ | |__  ___  __ _ _ _ __| |`, "#2dd4bf"},
	{`(_-< \ V  V /  | |  _/ __| '_ \| '_ \/ _ \/ _' | '_/ _' |`, "#22d3ee"},
	{`/__/  \_/\_/   |_|\__\___|_| |_|_.__/\___/\__,_|_| \__,_|`, "#38bdf8"},
}

// PrintBanner writes the switchboard banner to w, colored when w supports it.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  agent orchestration "+version).Faint())
	fmt.Fprintln(w)
}
