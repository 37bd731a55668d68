// Command validate checks game definition JSON files in the ../definitions
// directory before they are shipped to a server. It checks:
//   - JSON structure and required fields (id, name)
//   - Player bounds (minPlayers >= 1, maxPlayers >= minPlayers)
//   - Whether the id matches an engine the server can actually run
//   - Duplicate ids across files
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GameDef mirrors the JSON schema for a game definition.
type GameDef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MinPlayers  int      `json:"minPlayers"`
	MaxPlayers  int      `json:"maxPlayers"`
	Rules       []string `json:"rules"`
	Thumbnail   string   `json:"thumbnail"`
}

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	ID     string
	Valid  bool
	Errors []string
}

// engineIDs are the game ids the server has an engine for. A definition
// outside this set still loads but is flagged as display-only.
var engineIDs = map[string]bool{
	"pong":           true,
	"duel_racer":     true,
	"reaction_blitz": true,
}

// validateDef loads and validates a single definition JSON file.
func validateDef(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	var def GameDef
	if err := json.Unmarshal(data, &def); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid JSON: %v", err))
		return result
	}

	result.ID = def.ID

	if def.ID == "" {
		result.Valid = false
		result.Errors = append(result.Errors, "Missing required field: id")
	}
	if def.Name == "" {
		result.Valid = false
		result.Errors = append(result.Errors, "Missing required field: name")
	}
	if def.MinPlayers < 1 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("minPlayers must be at least 1, got %d", def.MinPlayers))
	}
	if def.MaxPlayers < def.MinPlayers {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("maxPlayers (%d) cannot be below minPlayers (%d)", def.MaxPlayers, def.MinPlayers))
	}

	if result.Valid {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ ID: %s", def.ID))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Name: %s", def.Name))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Players: %d-%d", def.MinPlayers, def.MaxPlayers))
		if engineIDs[def.ID] {
			result.Errors = append(result.Errors, "✓ Engine: available")
		} else {
			result.Errors = append(result.Errors, "⚠ Engine: none, definition is display-only")
		}
	}

	return result
}

func main() {
	defDir := flag.String("dir", "../definitions", "directory holding game definition JSON files")
	flag.Parse()

	files, err := filepath.Glob(filepath.Join(*defDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding definition files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No definition files found in %s\n", *defDir)
		os.Exit(1)
	}

	allValid := true
	seen := map[string]string{}
	for _, file := range files {
		result := validateDef(file)

		if result.ID != "" {
			if prev, dup := seen[result.ID]; dup {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("Duplicate id %q, already defined in %s", result.ID, prev))
			} else {
				seen[result.ID] = result.File
			}
		}

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All definitions are valid!")
	} else {
		fmt.Println("❌ Some definitions have errors")
		os.Exit(1)
	}
}
