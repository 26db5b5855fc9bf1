package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/solatis/rulekeeper/internal/types"
)

// readDocument reads a .json, .yaml or .yml file ("-" is stdin, read as JSON)
// and returns its content as JSON text.
func readDocument(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		js, err := types.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return js, nil
	case ".json", "":
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q (expected .json, .yaml or .yml)", filepath.Ext(path))
	}
}

func loadRuleSet(path string) (*types.RuleSet, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	set, err := types.ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

func loadInputs(path string) (*types.Map, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	m, err := types.ParseMapJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
