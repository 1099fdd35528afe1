package main

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/tionis/fasta-validator/internal/fasta"
)

// runCheck classifies each path ("-" reads in) and prints a result table.
// It reports whether every input was FASTA.
func runCheck(out io.Writer, in io.Reader, paths []string) (bool, error) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"File", "Bytes", "Result", "Label"})
	table.SetAutoWrapText(false)

	allFasta := true
	for _, path := range paths {
		data, err := readInput(path, in)
		if err != nil {
			return false, err
		}

		isFasta := fasta.IsFasta(string(data))
		if !isFasta {
			allFasta = false
		}
		table.Append([]string{path, fmt.Sprint(len(data)), fasta.Describe(isFasta), fasta.Label(isFasta)})
	}

	table.Render()
	return allFasta, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
