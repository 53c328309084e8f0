package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"db-portal/internal/value"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readArg returns arg itself, the contents of a file when it starts
// with '@', or stdin for "-".
func readArg(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(arg[1:])
	default:
		return []byte(arg), nil
	}
}

func parseRow(arg string) (value.Row, error) {
	data, err := readArg(arg)
	if err != nil {
		return value.Row{}, err
	}
	var row value.Row
	if err := row.UnmarshalJSON(data); err != nil {
		return value.Row{}, fmt.Errorf("invalid row JSON: %w", err)
	}
	return row, nil
}

func parseParams(arg string) (map[string]value.Value, error) {
	if arg == "" {
		return nil, nil
	}
	data, err := readArg(arg)
	if err != nil {
		return nil, err
	}
	params, err := value.Params(data)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters JSON: %w", err)
	}
	return params, nil
}
