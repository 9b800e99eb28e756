package main

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Output formats.
const (
	formatTable = "table"
	formatCSV   = "csv"
)

func validateFormat(format string) error {
	if format != formatTable && format != formatCSV {
		return eris.Errorf("--format must be table or csv (got %q)", format)
	}
	return nil
}

// openOutput returns stdout when path is empty, otherwise a new file.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create output file %s", path)
	}
	return f, f.Close, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
